// Package api holds the public contracts of the loading cache.
package api

import (
	"context"

	"github.com/krisalay/loading-cache/stats"
	"github.com/krisalay/loading-cache/types"
)

/*
Cache defines the PUBLIC API of the loading cache.
This is a contract that guarantees certain behaviors, without exposing internals.
All of the details like (sharding, eviction, expiration, concurrency and
data loading) are hidden behind this interface.
*/
type Cache[K comparable, V any] interface {

	/*
		Get retrieves the value associated with the given key.

		BEHAVIOR:
		-------------------
		1. If the key exists in cache and is NOT expired:
		   - Return the value immediately (cache hit)

		2. If the key does NOT exist or is expired:
		   - Load the value with the configured loader, once for all
		     concurrent callers of that key
		   - Store it in cache
		   - Return the value (cache miss)

		ERRORS:
		-------
		- *types.LoadError: the loader failed. Nothing is cached.
		- *types.CancellationError: ctx ended while waiting.
	*/
	Get(ctx context.Context, key K) (V, error)

	/*
		GetWith is Get with a loader supplied by the caller.
	*/
	GetWith(ctx context.Context, key K, loader types.Loader[K, V]) (V, error)

	/*
		GetAll retrieves several keys at once. Missing keys are loaded in a
		single bulk call when a bulk loader is configured.

		ERRORS:
		-------
		- *types.BatchLoadError: some keys failed (all-or-nothing mode only)
		- *types.CancellationError: ctx ended while waiting.
	*/
	GetAll(ctx context.Context, keys []K) (map[K]V, error)

	/*
		GetAllWith is GetAll with a bulk loader supplied by the caller.
	*/
	GetAllWith(ctx context.Context, keys []K, bulk types.BulkLoader[K, V]) (map[K]V, error)

	/*
		GetIfPresent returns a cached value without ever loading it.
	*/
	GetIfPresent(key K) (V, bool)

	/*
		Put stores a key-value pair in the cache.

		BEHAVIOR:
		---------
		- Replaces any existing value (REPLACED notification)
		- Applies eviction policy if cache is full (SIZE notifications)
	*/
	Put(key K, value V)

	/*
		Invalidate deletes a key from the cache immediately.

		This operation is idempotent:
		- Removing a non-existing key is safe
	*/
	Invalidate(key K)

	/*
		InvalidateAll deletes every key. One EXPLICIT notification per entry.
	*/
	InvalidateAll()

	/*
		Stats returns a point-in-time copy of the counters.
	*/
	Stats() stats.Snapshot

	/*
		Close gracefully shuts down the cache.

		BEHAVIOR:
		---------
		- Stops background goroutines
		- Delivers pending removal notifications
	*/
	Close()
}

/*
ContextedCache is the Cache surface for callers that bind their own state
to every lookup. callCtx reaches the loader but is not part of the key.
*/
type ContextedCache[K comparable, V any, C any] interface {
	Get(ctx context.Context, callCtx C, key K) (V, error)
	GetAll(ctx context.Context, callCtx C, keys []K) (map[K]V, error)
	GetIfPresent(key K) (V, bool)
	Put(key K, value V)
	Invalidate(key K)
	InvalidateAll()
	Stats() stats.Snapshot
}
