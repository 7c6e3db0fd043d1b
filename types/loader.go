package types

import "context"

// Loader is the contract between the cache and whatever computes values.
type Loader[K comparable, V any] interface {

	/*
		Load is called when the cache misses. The key was not found in memory
		(or was expired), so the cache asks the Loader to compute it.
		1. Cache checks memory → key not found
		2. Cache calls Load(key), once for all concurrent callers of that key
		3. Loader fetches from DB/API
		4. Cache stores the result in memory
		5. Cache returns the value to every waiter

		A returned error is never cached; the next call retries.
	*/
	Load(ctx context.Context, key K) (V, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

func (f LoaderFunc[K, V]) Load(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

/*
BulkLoader computes values for several missing keys in one call.

The returned map may hold a subset of keys. A requested key absent from the
map is a load failure for that key only.
*/
type BulkLoader[K comparable, V any] interface {
	LoadAll(ctx context.Context, keys []K) (map[K]V, error)
}

// BulkLoaderFunc adapts a plain function to BulkLoader.
type BulkLoaderFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

func (f BulkLoaderFunc[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	return f(ctx, keys)
}
