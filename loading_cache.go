package cache

import (
	"context"
	"hash/maphash"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krisalay/loading-cache/engine"
	"github.com/krisalay/loading-cache/eviction"
	"github.com/krisalay/loading-cache/expiration"
	"github.com/krisalay/loading-cache/removal"
	"github.com/krisalay/loading-cache/shard"
	"github.com/krisalay/loading-cache/stats"
	"github.com/krisalay/loading-cache/types"
)

type notification[K comparable, V any] = types.RemovalNotification[K, V]

/*
LoadingCache is the main cache implementation.
This struct is the orchestrator that connects:
- shards (lock-free reads)
- eviction (size bound)
- expiration (TTL)
- loading (single-flight per key)
- removal notifications and statistics (through the engine)

Locking rules:
- Reads never lock.
- Every mutation of the shards, size and policy happens under mu.
- mu is never held while a loader or a removal listener runs.
*/
type LoadingCache[K comparable, V any] struct {
	// shards are the actual storage units. Each shard is a copy-on-write map.
	shards []*shard.Shard[K, V]

	// selector decides which shard a key goes to.
	selector shard.Selector[K]

	// engine contains the "rules" of the cache: expiry, loading, stats, removal.
	engine *engine.CacheEngine[K, V]

	loader types.Loader[K, V]
	bulk   types.BulkLoader[K, V]
	mode   BulkLoadFailureMode

	mu          sync.Mutex
	size        int
	maximumSize int
	policyType  eviction.PolicyType
	policy      eviction.Policy[K] // nil when unbounded

	// sf makes sure that only ONE load per key runs at a time.
	sf         singleflight.Group
	flightSeed maphash.Seed

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

/*
New builds a LoadingCache from cfg.

loader is used by Get and GetAll. It may be nil when every lookup goes
through GetWith or GetAllWith; Get then fails with types.ErrNoLoader.
*/
func New[K comparable, V any](cfg Config, loader types.Loader[K, V], opts ...Option[K, V]) (*LoadingCache[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var o options[K, V]
	for _, opt := range opts {
		opt(&o)
	}

	c := &LoadingCache[K, V]{
		shards:   shard.NewShards[K, V](cfg.Shards),
		selector: shard.NewHashSelector[K](),
		engine: engine.NewCacheEngine(
			expiration.New[K, V](cfg.ExpireAfterWrite, cfg.ExpireAfterAccess),
			removal.New(o.listener, cfg.AsyncRemovalBuffer, cfg.Logger),
			cfg.Clock,
			cfg.Logger,
		),
		loader:      loader,
		bulk:        o.bulk,
		mode:        cfg.BulkLoadFailureMode,
		maximumSize: cfg.MaximumSize,
		policyType:  cfg.Eviction,
		flightSeed:  maphash.MakeSeed(),
		stop:        make(chan struct{}),
	}
	if cfg.MaximumSize > 0 {
		c.policy = eviction.NewEvictionPolicy[K](cfg.Eviction)
	}
	if cfg.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.janitor(cfg.CleanupInterval)
	}
	return c, nil
}

func (c *LoadingCache[K, V]) shardFor(key K) *shard.Shard[K, V] {
	return c.shards[c.selector.Index(key, len(c.shards))]
}

/*
lookup returns the live entry for key.
An expired entry is removed on the spot and reported as a miss.
*/
func (c *LoadingCache[K, V]) lookup(key K) (*types.Entry[K, V], bool) {
	ent, ok := c.shardFor(key).Store.Get(key)
	if !ok {
		return nil, false
	}

	now := c.engine.Now()
	if c.engine.IsExpired(ent, now) {
		c.expire(key, ent)
		return nil, false
	}

	c.engine.OnRead(ent, now)

	// Recency is best effort: a busy writer wins over an exact LRU order.
	if c.policy != nil && c.mu.TryLock() {
		c.policy.OnGet(key)
		c.mu.Unlock()
	}
	return ent, true
}

// peek is lookup without side effects.
func (c *LoadingCache[K, V]) peek(key K) (*types.Entry[K, V], bool) {
	ent, ok := c.shardFor(key).Store.Get(key)
	if !ok || c.engine.IsExpired(ent, c.engine.Now()) {
		return nil, false
	}
	return ent, true
}

// GetIfPresent returns the cached value for key without loading it.
func (c *LoadingCache[K, V]) GetIfPresent(key K) (V, bool) {
	if ent, ok := c.lookup(key); ok {
		c.engine.Stats.RecordHits(1)
		return ent.Value, true
	}
	c.engine.Stats.RecordMisses(1)

	var zero V
	return zero, false
}

// Get returns the value for key, loading it with the cache's loader on a miss.
func (c *LoadingCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	return c.GetWith(ctx, key, c.loader)
}

/*
GetWith returns the value for key, loading it with loader on a miss.

If 100 goroutines miss the same key, only ONE of them runs a loader; the
others wait for its result. A waiter whose ctx ends gets a
*types.CancellationError while the load carries on for everyone else.
A failed load is returned as a *types.LoadError and is not cached.
*/
func (c *LoadingCache[K, V]) GetWith(ctx context.Context, key K, loader types.Loader[K, V]) (V, error) {
	if ent, ok := c.lookup(key); ok {
		c.engine.Stats.RecordHits(1)
		return ent.Value, nil
	}
	c.engine.Stats.RecordMisses(1)

	return c.load(ctx, key, loader)
}

// load runs loader for key through the single-flight group and installs the result.
func (c *LoadingCache[K, V]) load(ctx context.Context, key K, loader types.Loader[K, V]) (V, error) {
	// The load is shared, so no single caller may cancel it.
	loadCtx := context.WithoutCancel(ctx)

	return c.doFlight(ctx, key, func() (V, []notification[K, V], error) {
		// Someone may have finished loading this key since our lookup.
		if ent, ok := c.peek(key); ok {
			return ent.Value, nil, nil
		}

		v, err := c.engine.Load(loadCtx, key, loader)
		if err != nil {
			return v, nil, err
		}
		v, ns := c.install(key, v)
		return v, ns, nil
	})
}

type flight[K comparable, V any] struct {
	key   K
	value V
}

type flightResult[V any] struct {
	value V
	err   error
}

/*
doFlight runs fn once per key among all concurrent callers.

The shared call runs on its own goroutine so a caller can stop waiting when
ctx ends. Notifications produced by fn are dispatched after the flight is
forgotten, so a removal listener may call back into the cache for the same
key.
*/
func (c *LoadingCache[K, V]) doFlight(ctx context.Context, key K, fn func() (V, []notification[K, V], error)) (V, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, types.NewCancellationError(key, err)
	}

	done := make(chan flightResult[V], 1)
	go func() {
		var pending []notification[K, V]
		res, err, _ := c.sf.Do(flightKey(c.flightSeed, key), func() (any, error) {
			v, ns, err := fn()
			pending = ns
			return flight[K, V]{key: key, value: v}, err
		})
		c.engine.Notify(pending)

		f, _ := res.(flight[K, V])
		if f.key != key {
			// Two keys hashed to the same flight key.
			v, ns, err := fn()
			c.engine.Notify(ns)
			done <- flightResult[V]{value: v, err: err}
			return
		}
		done <- flightResult[V]{value: f.value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, types.NewCancellationError(key, ctx.Err())
	}
}

// flightKey names the singleflight call for key. Non-string keys are
// hashed by identity, so two pointers are never merged because their
// pointees look alike.
func flightKey[K comparable](seed maphash.Seed, key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return strconv.FormatUint(maphash.Comparable(seed, key), 36)
}

/*
install stores a freshly loaded value.
A live entry written while the load was running wins over the loaded value,
and that entry's value is returned instead.
*/
func (c *LoadingCache[K, V]) install(key K, v V) (V, []notification[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.shardFor(key).Store.Get(key); ok && !c.engine.IsExpired(cur, c.engine.Now()) {
		return cur.Value, nil
	}
	return v, c.putLocked(key, v)
}

// Put stores value for key, replacing any existing value.
func (c *LoadingCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	ns := c.putLocked(key, value)
	c.mu.Unlock()

	c.engine.Notify(ns)
}

/*
putLocked writes an entry and evicts down to the size bound.
It returns the notifications to dispatch once mu is released.
*/
func (c *LoadingCache[K, V]) putLocked(key K, value V) []notification[K, V] {
	sh := c.shardFor(key)
	now := c.engine.Now()

	ent := types.NewEntry(key, value, now)
	prev, had := sh.Store.Get(key)
	expired := had && c.engine.IsExpired(prev, now)
	if had && !expired {
		ent.CreatedAt = prev.CreatedAt
	}
	sh.Store.Put(key, ent)

	var ns []notification[K, V]
	switch {
	case !had:
		c.size++
		if c.policy != nil {
			c.policy.OnPut(key)
		}
	case expired:
		ns = append(ns, notification[K, V]{Key: prev.Key, Value: prev.Value, Cause: types.Expired})
		if c.policy != nil {
			// The old entry is gone, so the key starts over.
			c.policy.Remove(key)
			c.policy.OnPut(key)
		}
	default:
		ns = append(ns, notification[K, V]{Key: prev.Key, Value: prev.Value, Cause: types.Replaced})
		if c.policy != nil {
			c.policy.OnPut(key)
		}
	}

	return c.evictLocked(ns)
}

// evictLocked removes entries until the cache is back within MaximumSize.
func (c *LoadingCache[K, V]) evictLocked(ns []notification[K, V]) []notification[K, V] {
	if c.policy == nil {
		return ns
	}

	for c.size > c.maximumSize {
		victim, ok := c.policy.Evict()
		if !ok {
			break
		}
		prev, had := c.shardFor(victim).Store.Delete(victim)
		if !had {
			continue
		}
		c.size--
		ns = append(ns, notification[K, V]{Key: prev.Key, Value: prev.Value, Cause: types.Size})
	}
	return ns
}

// removeLocked deletes key and stops tracking it.
func (c *LoadingCache[K, V]) removeLocked(key K, cause types.RemovalCause) (notification[K, V], bool) {
	prev, had := c.shardFor(key).Store.Delete(key)
	if !had {
		return notification[K, V]{}, false
	}

	c.size--
	if c.policy != nil {
		c.policy.Remove(key)
	}
	return notification[K, V]{Key: prev.Key, Value: prev.Value, Cause: cause}, true
}

// expire removes ent if it is still the entry stored for key.
func (c *LoadingCache[K, V]) expire(key K, ent *types.Entry[K, V]) {
	c.mu.Lock()
	var ns []notification[K, V]
	if cur, ok := c.shardFor(key).Store.Get(key); ok && cur == ent {
		if n, ok := c.removeLocked(key, types.Expired); ok {
			ns = append(ns, n)
		}
	}
	c.mu.Unlock()

	c.engine.Notify(ns)
}

// Invalidate removes key from the cache.
func (c *LoadingCache[K, V]) Invalidate(key K) {
	c.InvalidateKeys(key)
}

// InvalidateKeys removes every given key from the cache.
func (c *LoadingCache[K, V]) InvalidateKeys(keys ...K) {
	var ns []notification[K, V]

	c.mu.Lock()
	for _, k := range keys {
		if n, ok := c.removeLocked(k, types.Explicit); ok {
			ns = append(ns, n)
		}
	}
	c.mu.Unlock()

	c.engine.Notify(ns)
}

// InvalidateAll removes every entry from the cache.
func (c *LoadingCache[K, V]) InvalidateAll() {
	var ns []notification[K, V]

	c.mu.Lock()
	for _, sh := range c.shards {
		for _, ent := range sh.Store.Clear() {
			ns = append(ns, notification[K, V]{Key: ent.Key, Value: ent.Value, Cause: types.Explicit})
		}
	}
	c.size = 0
	if c.policy != nil {
		c.policy = eviction.NewEvictionPolicy[K](c.policyType)
	}
	c.mu.Unlock()

	c.engine.Notify(ns)
}

/*
CleanUp removes every expired entry now.
Expired entries are otherwise only removed when they are looked up,
replaced, or swept by the janitor.
*/
func (c *LoadingCache[K, V]) CleanUp() {
	now := c.engine.Now()
	var ns []notification[K, V]

	c.mu.Lock()
	for _, sh := range c.shards {
		gone := sh.Store.DeleteFunc(func(ent *types.Entry[K, V]) bool {
			return c.engine.IsExpired(ent, now)
		})
		for _, ent := range gone {
			c.size--
			if c.policy != nil {
				c.policy.Remove(ent.Key)
			}
			ns = append(ns, notification[K, V]{Key: ent.Key, Value: ent.Value, Cause: types.Expired})
		}
	}
	c.mu.Unlock()

	if len(ns) > 0 {
		c.engine.Logger.LogAttrs(context.Background(), slog.LevelDebug, "expired entries swept",
			slog.Int("count", len(ns)),
		)
	}
	c.engine.Notify(ns)
}

func (c *LoadingCache[K, V]) janitor(every time.Duration) {
	defer c.wg.Done()

	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.CleanUp()
		}
	}
}

// Len returns the number of stored entries, including expired entries
// that were not removed yet.
func (c *LoadingCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a point-in-time copy of the cache counters.
func (c *LoadingCache[K, V]) Stats() stats.Snapshot {
	return c.engine.Stats.Snapshot()
}

// RemovalListenerFailures returns how many removal listener calls failed.
func (c *LoadingCache[K, V]) RemovalListenerFailures() uint64 {
	return c.engine.Removal.Failures()
}

/*
Close stops the janitor and waits for pending removal notifications.
The cache stays usable afterwards; later notifications are delivered
on the goroutine that caused them.
*/
func (c *LoadingCache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.engine.Close()
	})
}
