package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krisalay/loading-cache/expiration"
	"github.com/krisalay/loading-cache/removal"
	"github.com/krisalay/loading-cache/stats"
	"github.com/krisalay/loading-cache/types"
)

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.
This acts as the policy layer.

It decides:
- When data is expired
- How access times are updated on reads
- How data is loaded on cache miss (timing, failure wrapping)
- Where removal notifications go
- How statistics are recorded

It does NOT:
- Store data
- Handle sharding
- Handle locking
- Decide eviction order
*/
type CacheEngine[K comparable, V any] struct {

	// Expiration controls when a cache entry should be considered “too old”.
	Expiration expiration.Strategy[K, V]

	// Removal receives one notification per entry that leaves the cache.
	Removal removal.Dispatcher[K, V]

	// Stats counts hits, misses, loads and evictions.
	Stats *stats.Counter

	// Clock is the time source for expiry. Load time is always measured
	// with the wall clock.
	Clock func() time.Time

	Logger *slog.Logger
}

/*
NewCacheEngine creates a CacheEngine. Nil collaborators get no-op defaults so
the rest of the code never checks for nil.
*/
func NewCacheEngine[K comparable, V any](
	exp expiration.Strategy[K, V],
	dispatcher removal.Dispatcher[K, V],
	clock func() time.Time,
	logger *slog.Logger,
) *CacheEngine[K, V] {
	if exp == nil {
		exp = expiration.Never[K, V]{}
	}
	if dispatcher == nil {
		dispatcher = removal.Discard[K, V]{}
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CacheEngine[K, V]{
		Expiration: exp,
		Removal:    dispatcher,
		Stats:      &stats.Counter{},
		Clock:      clock,
		Logger:     logger,
	}
}

// Now returns the engine's current time.
func (e *CacheEngine[K, V]) Now() time.Time {
	return e.Clock()
}

// IsExpired checks whether a cache entry is expired at now.
func (e *CacheEngine[K, V]) IsExpired(ent *types.Entry[K, V], now time.Time) bool {
	return e.Expiration.IsExpired(ent, now)
}

// OnRead is called every time the cache successfully returns a value.
func (e *CacheEngine[K, V]) OnRead(ent *types.Entry[K, V], now time.Time) {
	e.Expiration.OnAccess(ent, now)
}

/*
Load runs the loader for one key.

This usually means:
- A database call
- A network request

Every failure comes back as a *types.LoadError: a returned error, a panic,
or a nil value. Elapsed time and the outcome go to Stats.
*/
func (e *CacheEngine[K, V]) Load(ctx context.Context, key K, loader types.Loader[K, V]) (v V, err error) {
	if loader == nil {
		e.Stats.RecordLoadFailure(1, 0)
		return v, types.NewLoadError(key, types.ErrNoLoader)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = types.NewLoadError(key, fmt.Errorf("loader panicked: %v", r))
		}
		elapsed := time.Since(start)
		if err != nil {
			var zero V
			v = zero
			e.Stats.RecordLoadFailure(1, elapsed)
			e.Logger.LogAttrs(ctx, slog.LevelDebug, "load failed",
				slog.String("key", fmt.Sprint(key)),
				slog.Duration("elapsed", elapsed),
				slog.Any("error", err),
			)
			return
		}
		e.Stats.RecordLoadSuccess(1, elapsed)
	}()

	v, err = loader.Load(ctx, key)
	if err != nil {
		return v, types.NewLoadError(key, err)
	}
	if isNil(v) {
		return v, types.NewLoadError(key, types.ErrNilValue)
	}
	return v, nil
}

/*
LoadAll runs a bulk loader for the missing keys.

The returned map only holds requested keys with usable values. failed holds
an error for every requested key that was not loaded. When the bulk loader
fails as a whole, err is that failure and every key fails with it.
*/
func (e *CacheEngine[K, V]) LoadAll(ctx context.Context, keys []K, bulk types.BulkLoader[K, V]) (loaded map[K]V, failed map[K]error, err error) {
	failed = make(map[K]error)
	loaded = make(map[K]V, len(keys))

	start := time.Now()
	res, err := e.callBulk(ctx, keys, bulk)
	elapsed := time.Since(start)

	for _, k := range keys {
		switch v, ok := res[k]; {
		case err != nil:
			failed[k] = types.NewLoadError(k, err)
		case !ok:
			failed[k] = types.NewLoadError(k, types.ErrKeyNotLoaded)
		case isNil(v):
			failed[k] = types.NewLoadError(k, types.ErrNilValue)
		default:
			loaded[k] = v
		}
	}

	// Load time is recorded once per bulk call.
	e.Stats.RecordLoadSuccess(len(loaded), elapsed)
	e.Stats.RecordLoadFailure(len(failed), 0)

	if len(failed) > 0 {
		e.Logger.LogAttrs(ctx, slog.LevelDebug, "bulk load incomplete",
			slog.Int("requested", len(keys)),
			slog.Int("failed", len(failed)),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
	}
	return loaded, failed, err
}

func (e *CacheEngine[K, V]) callBulk(ctx context.Context, keys []K, bulk types.BulkLoader[K, V]) (res map[K]V, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("bulk loader panicked: %v", r)
		}
	}()
	return bulk.LoadAll(ctx, keys)
}

/*
Notify dispatches removal notifications and counts evictions.
It must be called after the cache released its write mutex.
*/
func (e *CacheEngine[K, V]) Notify(ns []types.RemovalNotification[K, V]) {
	for _, n := range ns {
		if n.Cause.WasEvicted() {
			e.Stats.RecordEviction()
		}
		e.Removal.Dispatch(n)
	}
}

// Close releases the removal dispatcher.
func (e *CacheEngine[K, V]) Close() {
	e.Removal.Close()
}

// isNil reports whether v is a nil interface value. Only interface-typed V
// can be nil here; a nil pointer stored in V is a real value.
func isNil[V any](v V) bool {
	return any(v) == nil
}
