package cache_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	cache "github.com/krisalay/loading-cache"
	"github.com/krisalay/loading-cache/eviction"
	"github.com/krisalay/loading-cache/types"
)

//
// ================= TEST HELPERS =================
//

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// TestStore is the backing store the loaders read from.
type TestStore struct {
	mu    sync.RWMutex
	data  map[string]int
	calls atomic.Int64
}

func NewTestStore() *TestStore {
	return &TestStore{data: make(map[string]int)}
}

func (s *TestStore) Load(_ context.Context, key string) (int, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return 0, fmt.Errorf("no row for %q", key)
	}
	return v, nil
}

func (s *TestStore) Set(key string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

type removals struct {
	mu  sync.Mutex
	got []types.RemovalNotification[string, int]
}

func (r *removals) listen(n types.RemovalNotification[string, int]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *removals) all() []types.RemovalNotification[string, int] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.RemovalNotification[string, int](nil), r.got...)
}

func (r *removals) count(cause types.RemovalCause) int {
	n := 0
	for _, got := range r.all() {
		if got.Cause == cause {
			n++
		}
	}
	return n
}

func throwingLoader(t *testing.T) types.Loader[string, int] {
	return types.LoaderFunc[string, int](func(_ context.Context, key string) (int, error) {
		t.Errorf("loader called for %q", key)
		return 0, errors.New("must not load")
	})
}

func newTestCache(t *testing.T, cfg cache.Config) (*cache.LoadingCache[string, int], *TestStore, *removals) {
	t.Helper()
	store := NewTestStore()
	rec := &removals{}

	c, err := cache.New[string, int](cfg, store, cache.WithRemovalListener(rec.listen))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c, store, rec
}

//
// ================= BASIC OPERATIONS =================
//

func TestGet_LoadsOnceThenHits(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestCache(t, cache.Config{})
	store.Set("a", 1)

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	assert.Equal(t, int64(1), store.calls.Load())
	s := c.Stats()
	assert.Equal(t, uint64(1), s.HitCount)
	assert.Equal(t, uint64(1), s.MissCount)
	assert.Equal(t, uint64(1), s.LoadSuccessCount)
	assert.Equal(t, 1, c.Len())
}

func TestPut_ThenGetDoesNotLoad(t *testing.T) {
	c, _, _ := newTestCache(t, cache.Config{})

	c.Put("k", 42)
	v, err := c.GetWith(context.Background(), "k", throwingLoader(t))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPut_ReplaceNotifies(t *testing.T) {
	c, _, rec := newTestCache(t, cache.Config{})

	c.Put("k", 1)
	c.Put("k", 2)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, types.RemovalNotification[string, int]{Key: "k", Value: 1, Cause: types.Replaced}, got[0])

	v, ok := c.GetIfPresent("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate(t *testing.T) {
	c, _, rec := newTestCache(t, cache.Config{})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	c.Invalidate("a")
	c.Invalidate("a") // idempotent
	c.Invalidate("missing")
	assert.Equal(t, 1, rec.count(types.Explicit))

	c.InvalidateKeys("b", "nope")
	assert.Equal(t, 2, rec.count(types.Explicit))

	c.Put("d", 4)
	c.InvalidateAll()
	assert.Equal(t, 4, rec.count(types.Explicit))
	assert.Equal(t, 0, c.Len())

	_, ok := c.GetIfPresent("c")
	assert.False(t, ok)
}

func TestGetIfPresent_CountsHitsAndMisses(t *testing.T) {
	c, store, _ := newTestCache(t, cache.Config{})
	c.Put("a", 1)

	_, ok := c.GetIfPresent("a")
	assert.True(t, ok)
	_, ok = c.GetIfPresent("b")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.HitCount)
	assert.Equal(t, uint64(1), s.MissCount)
	assert.Equal(t, int64(0), store.calls.Load())
}

//
// ================= LOAD FAILURES =================
//

func TestGet_FailuresAreNotCached(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestCache(t, cache.Config{})

	_, err := c.Get(ctx, "x")
	var le *types.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "x", le.Key)
	assert.Equal(t, 0, c.Len())

	store.Set("x", 9)
	v, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.LoadFailureCount)
	assert.Equal(t, uint64(1), s.LoadSuccessCount)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestGet_NoLoader(t *testing.T) {
	c, err := cache.New[string, int](cache.Config{}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrNoLoader)
}

func TestGet_NilValueIsAFailure(t *testing.T) {
	loader := types.LoaderFunc[string, any](func(context.Context, string) (any, error) {
		return nil, nil
	})
	c, err := cache.New[string, any](cache.Config{}, loader)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrNilValue)
	assert.Equal(t, 0, c.Len())
}

//
// ================= SINGLE FLIGHT =================
//

func TestGet_SingleFlight(t *testing.T) {
	const callers = 64

	var calls atomic.Int64
	release := make(chan struct{})
	loader := types.LoaderFunc[string, int](func(context.Context, string) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	})

	c, err := cache.New[string, int](cache.Config{}, loader)
	require.NoError(t, err)
	defer c.Close()

	results := make([]int, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			v, err := c.Get(context.Background(), "hot")
			results[i] = v
			return err
		})
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

type tenant struct{ id int }

func TestGet_SingleFlightPointerKeys(t *testing.T) {
	const callers = 32

	var calls atomic.Int64
	release := make(chan struct{})
	loader := types.LoaderFunc[*tenant, int](func(_ context.Context, k *tenant) (int, error) {
		calls.Add(1)
		<-release
		return k.id, nil
	})

	c, err := cache.New[*tenant, int](cache.Config{}, loader)
	require.NoError(t, err)
	defer c.Close()

	// Distinct keys that print the same.
	a, b := &tenant{id: 1}, &tenant{id: 1}

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		for _, k := range []*tenant{a, b} {
			g.Go(func() error {
				_, err := c.Get(context.Background(), k)
				return err
			})
		}
	}

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestGet_WaiterCancellation(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	loader := types.LoaderFunc[string, int](func(ctx context.Context, _ string) (int, error) {
		calls.Add(1)
		<-release
		// A waiter's cancellation never reaches the shared load.
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 5, nil
	})

	c, err := cache.New[string, int](cache.Config{}, loader)
	require.NoError(t, err)
	defer c.Close()

	leader := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "slow")
		leader <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "slow")

	var ce *types.CancellationError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Timeout())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.As(err, new(*types.LoadError)), "a timeout is not a load failure")

	close(release)
	require.NoError(t, <-leader)

	v, ok := c.GetIfPresent("slow")
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGet_CancelledBeforeLoad(t *testing.T) {
	c, store, _ := newTestCache(t, cache.Config{})
	store.Set("a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "a")
	var ce *types.CancellationError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Timeout())
	assert.Equal(t, int64(0), store.calls.Load())
}

func TestGet_PutDuringLoadWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	loader := types.LoaderFunc[string, int](func(context.Context, string) (int, error) {
		close(started)
		<-release
		return 1, nil
	})

	rec := &removals{}
	c, err := cache.New[string, int](cache.Config{}, loader, cache.WithRemovalListener(rec.listen))
	require.NoError(t, err)
	defer c.Close()

	done := make(chan int, 1)
	go func() {
		v, _ := c.Get(context.Background(), "k")
		done <- v
	}()

	<-started
	c.Put("k", 99)
	close(release)

	assert.Equal(t, 99, <-done)
	v, _ := c.GetIfPresent("k")
	assert.Equal(t, 99, v)
	assert.Empty(t, rec.all())
}

//
// ================= EXPIRATION =================
//

func TestExpireAfterWrite(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, store, rec := newTestCache(t, cache.Config{ExpireAfterWrite: 10 * time.Second, Clock: clock.Now})
	store.Set("k", 1)

	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(9 * time.Second)
	v, err := c.GetWith(ctx, "k", throwingLoader(t))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	store.Set("k", 2)
	clock.Advance(time.Second)
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(2), store.calls.Load())

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, types.Expired, got[0].Cause)
	assert.Equal(t, 1, got[0].Value)
	assert.Equal(t, uint64(1), c.Stats().EvictionCount)
}

func TestExpireAfterAccess(t *testing.T) {
	clock := newFakeClock()
	c, _, _ := newTestCache(t, cache.Config{ExpireAfterAccess: 10 * time.Second, Clock: clock.Now})
	c.Put("k", 1)

	for i := 0; i < 5; i++ {
		clock.Advance(8 * time.Second)
		_, ok := c.GetIfPresent("k")
		require.True(t, ok, "read %d", i)
	}

	clock.Advance(10 * time.Second)
	_, ok := c.GetIfPresent("k")
	assert.False(t, ok)
}

func TestPut_OverExpiredEntryNotifiesExpired(t *testing.T) {
	clock := newFakeClock()
	c, _, rec := newTestCache(t, cache.Config{ExpireAfterWrite: time.Second, Clock: clock.Now})

	c.Put("k", 1)
	clock.Advance(time.Second)
	c.Put("k", 2)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, types.Expired, got[0].Cause)
	assert.Equal(t, 1, c.Len())
}

func TestCleanUp(t *testing.T) {
	clock := newFakeClock()
	c, _, rec := newTestCache(t, cache.Config{ExpireAfterWrite: time.Minute, Clock: clock.Now})

	c.Put("old-1", 1)
	c.Put("old-2", 2)
	clock.Advance(30 * time.Second)
	c.Put("new", 3)
	clock.Advance(30 * time.Second)

	c.CleanUp()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, rec.count(types.Expired))
	_, ok := c.GetIfPresent("new")
	assert.True(t, ok)
}

func TestJanitor(t *testing.T) {
	clock := newFakeClock()
	c, _, rec := newTestCache(t, cache.Config{
		ExpireAfterWrite: time.Second,
		CleanupInterval:  5 * time.Millisecond,
		Clock:            clock.Now,
	})

	c.Put("a", 1)
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(types.Expired))
}

//
// ================= CAPACITY & EVICTION =================
//

func TestMaximumSize(t *testing.T) {
	const max, extra = 5, 3

	tests := map[string]eviction.PolicyType{
		"lru":  eviction.LRU,
		"fifo": eviction.FIFO,
		"lfu":  eviction.LFU,
	}

	for name, policy := range tests {
		t.Run(name, func(t *testing.T) {
			c, _, rec := newTestCache(t, cache.Config{MaximumSize: max, Eviction: policy})

			for i := 0; i < max+extra; i++ {
				c.Put(fmt.Sprintf("k%d", i), i)
			}

			assert.Equal(t, max, c.Len())
			assert.Equal(t, extra, rec.count(types.Size))
			assert.Len(t, rec.all(), extra)
			assert.Equal(t, uint64(extra), c.Stats().EvictionCount)

			// Nothing was read, so every policy evicts in insertion order.
			for i, n := range rec.all() {
				assert.Equal(t, fmt.Sprintf("k%d", i), n.Key)
			}
		})
	}
}

func TestMaximumSize_LRUKeepsReadKeys(t *testing.T) {
	c, _, rec := newTestCache(t, cache.Config{MaximumSize: 2, Eviction: eviction.LRU})

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.GetIfPresent("a")
	c.Put("c", 3)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Key)
}

func TestMaximumSize_LoadedEntriesCount(t *testing.T) {
	ctx := context.Background()
	c, store, rec := newTestCache(t, cache.Config{MaximumSize: 2, Eviction: eviction.FIFO})
	for i := 0; i < 4; i++ {
		store.Set(fmt.Sprintf("k%d", i), i)
	}

	for i := 0; i < 4; i++ {
		_, err := c.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, rec.count(types.Size))
}

//
// ================= REMOVAL LISTENER =================
//

func TestRemovalListener_FailuresDoNotPropagate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	listener := func(n types.RemovalNotification[string, int]) error {
		if n.Cause == types.Explicit {
			panic("listener exploded")
		}
		return errors.New("listener refused")
	}
	c, err := cache.New[string, int](cache.Config{MaximumSize: 1, Logger: logger}, nil,
		cache.WithRemovalListener(listener))
	require.NoError(t, err)
	defer c.Close()

	assert.NotPanics(t, func() {
		c.Put("a", 1)
		c.Put("a", 2) // REPLACED
		c.Put("b", 3) // SIZE
		c.Invalidate("b")
	})

	assert.Equal(t, uint64(3), c.RemovalListenerFailures())
	assert.Contains(t, buf.String(), "removal listener failed")
}

func TestRemovalListener_CanCallBackIntoCache(t *testing.T) {
	var c *cache.LoadingCache[string, int]
	var seen atomic.Int64
	listener := func(n types.RemovalNotification[string, int]) error {
		// Runs after the write lock is released.
		c.Put("audit-"+n.Key, n.Value)
		seen.Add(1)
		return nil
	}

	var err error
	c, err = cache.New[string, int](cache.Config{}, nil, cache.WithRemovalListener(listener))
	require.NoError(t, err)
	defer c.Close()

	c.Put("a", 1)
	c.Invalidate("a")

	assert.Equal(t, int64(1), seen.Load())
	v, ok := c.GetIfPresent("audit-a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRemovalListener_Async(t *testing.T) {
	rec := &removals{}
	c, err := cache.New[string, int](cache.Config{MaximumSize: 10, AsyncRemovalBuffer: 2}, nil,
		cache.WithRemovalListener(rec.listen))
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	c.Close()

	assert.Equal(t, 20, rec.count(types.Size))
}

func TestRemovalListener_AsyncCanCallBackIntoCache(t *testing.T) {
	var c *cache.LoadingCache[string, int]
	var audited atomic.Int64
	listener := func(n types.RemovalNotification[string, int]) error {
		if n.Cause == types.Size && !strings.HasPrefix(n.Key, "audit-") {
			// Evicts again, so the worker dispatches to itself.
			c.Put("audit-"+n.Key, n.Value)
			audited.Add(1)
		}
		return nil
	}

	var err error
	c, err = cache.New[string, int](cache.Config{MaximumSize: 2, AsyncRemovalBuffer: 1}, nil,
		cache.WithRemovalListener(listener))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			c.Put(fmt.Sprintf("k%d", i), i)
		}
		c.Close()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("put or close blocked on the removal listener")
	}

	assert.Positive(t, audited.Load())
	assert.Equal(t, uint64(0), c.RemovalListenerFailures())
	assert.LessOrEqual(t, c.Len(), 2)
}

// Every entry that leaves the cache is reported exactly once.
func TestRemovalListener_ExactlyOncePerEntry(t *testing.T) {
	clock := newFakeClock()
	c, _, rec := newTestCache(t, cache.Config{
		MaximumSize:      50,
		ExpireAfterWrite: time.Minute,
		Clock:            clock.Now,
	})

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (w*31+i)%120)
				switch i % 4 {
				case 0, 1:
					c.Put(key, i)
				case 2:
					c.GetIfPresent(key)
				case 3:
					c.Invalidate(key)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	clock.Advance(time.Minute)
	c.CleanUp()
	require.Equal(t, 0, c.Len())

	// Puts that created an entry == entries that left the cache.
	added := 8*100 - rec.count(types.Replaced)
	assert.Equal(t, added, len(rec.all())-rec.count(types.Replaced))
}

//
// ================= CONCURRENCY TEST =================
//

func TestConcurrentGet(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestCache(t, cache.Config{MaximumSize: 64})
	for i := 0; i < 100; i++ {
		store.Set(fmt.Sprintf("key-%d", i), i)
	}

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("key-%d", (i*7+w)%100)
				v, err := c.Get(ctx, key)
				if err != nil {
					return err
				}
				if want := (i*7 + w) % 100; v != want {
					return fmt.Errorf("%s: got %d, want %d", key, v, want)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, c.Len(), 64)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := cache.New[string, int](cache.Config{MaximumSize: -1}, nil)
	var ce *types.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "MaximumSize", ce.Field)
}
