package cache

import (
	"context"

	"github.com/krisalay/loading-cache/api"
	"github.com/krisalay/loading-cache/stats"
	"github.com/krisalay/loading-cache/types"
)

// ContextedLoader computes the value of key for a caller that supplied callCtx.
type ContextedLoader[K comparable, V any, C any] func(ctx context.Context, callCtx C, key K) (V, error)

// ContextedBulkLoader computes the values of several keys for one caller.
type ContextedBulkLoader[K comparable, V any, C any] func(ctx context.Context, callCtx C, keys []K) (map[K]V, error)

/*
ContextedCache lets every call hand its own state (a request, a session,
a connection) to the loader without making that state part of the cache key.

The call context is NOT part of identity: entries are stored under the
logical key only. So whichever call first triggers a load of a key decides
the context the loader sees. A call with another context that arrives while
that load is running, or before the entry expires, gets the same value and
its own context is never used. When two contexts race for an uncached key,
which one wins is not defined.

The call context is passed to the loader for that one call only. The cache
never keeps a reference to it after the call returns.
*/
type ContextedCache[K comparable, V any, C any] struct {
	cache  *LoadingCache[K, V]
	loader ContextedLoader[K, V, C]
	bulk   ContextedBulkLoader[K, V, C]
}

/*
NewContexted wraps c. bulk may be nil, in which case GetAll loads missing
keys one by one through loader. The loader c was built with is not used by
the wrapper.
*/
func NewContexted[K comparable, V any, C any](
	c *LoadingCache[K, V],
	loader ContextedLoader[K, V, C],
	bulk ContextedBulkLoader[K, V, C],
) *ContextedCache[K, V, C] {
	return &ContextedCache[K, V, C]{cache: c, loader: loader, bulk: bulk}
}

// Get returns the value of key, loading it for callCtx on a miss.
func (a *ContextedCache[K, V, C]) Get(ctx context.Context, callCtx C, key K) (V, error) {
	return a.cache.GetWith(ctx, key, a.loaderFor(callCtx))
}

// GetAll returns the values of keys, loading the missing ones for callCtx.
// The result is keyed by the plain keys.
func (a *ContextedCache[K, V, C]) GetAll(ctx context.Context, callCtx C, keys []K) (map[K]V, error) {
	if a.bulk == nil {
		return a.cache.getAllSingly(ctx, keys, a.loaderFor(callCtx))
	}
	bulk := types.BulkLoaderFunc[K, V](func(ctx context.Context, misses []K) (map[K]V, error) {
		return a.bulk(ctx, callCtx, misses)
	})
	return a.cache.GetAllWith(ctx, keys, bulk)
}

/*
loaderFor adapts the contexted loader to the cache's loader for one call.
Each key the cache asks for is bound to callCtx and handed to load, which
is the only place the composite key is taken apart again.
*/
func (a *ContextedCache[K, V, C]) loaderFor(callCtx C) types.Loader[K, V] {
	if a.loader == nil {
		return nil
	}
	return types.LoaderFunc[K, V](func(ctx context.Context, key K) (V, error) {
		return a.load(ctx, NewCompositeKey(key, callCtx))
	})
}

func (a *ContextedCache[K, V, C]) load(ctx context.Context, ck CompositeKey[K, C]) (V, error) {
	return a.loader(ctx, ck.Context(), ck.Key())
}

// GetIfPresent returns the cached value of key without loading it.
func (a *ContextedCache[K, V, C]) GetIfPresent(key K) (V, bool) {
	return a.cache.GetIfPresent(key)
}

// Put stores value for key. No call context is involved.
func (a *ContextedCache[K, V, C]) Put(key K, value V) {
	a.cache.Put(key, value)
}

// Invalidate removes key from the wrapped cache.
func (a *ContextedCache[K, V, C]) Invalidate(key K) {
	a.cache.Invalidate(key)
}

// InvalidateAll empties the wrapped cache.
func (a *ContextedCache[K, V, C]) InvalidateAll() {
	a.cache.InvalidateAll()
}

// Stats returns the wrapped cache's statistics.
func (a *ContextedCache[K, V, C]) Stats() stats.Snapshot {
	return a.cache.Stats()
}

// Cache returns the wrapped cache.
func (a *ContextedCache[K, V, C]) Cache() *LoadingCache[K, V] {
	return a.cache
}

var (
	_ api.Cache[string, any]               = (*LoadingCache[string, any])(nil)
	_ api.ContextedCache[string, any, any] = (*ContextedCache[string, any, any])(nil)
)
