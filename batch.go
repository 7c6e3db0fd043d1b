package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/krisalay/loading-cache/types"
)

// maxConcurrentLoads bounds the per-key loads of a GetAll without a bulk loader.
const maxConcurrentLoads = 16

// GetAll returns the values for keys, loading the missing ones with the
// cache's bulk loader, or key by key with its loader when it has none.
func (c *LoadingCache[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	return c.GetAllWith(ctx, keys, c.bulk)
}

/*
GetAllWith returns the values for keys, loading all missing keys with a
single call to bulk.

1. Duplicate keys are dropped.
2. Keys are split into hits and misses.
3. bulk is called once with the misses.
4. Every loaded key is stored through the single-flight path, so a value
   another caller loaded meanwhile is kept and returned instead.
5. Hits and loaded values are merged into the result.

A miss bulk did not return is a failure of that key only. What happens to
failed keys is decided by Config.BulkLoadFailureMode. A nil bulk loads the
misses one by one through the cache's loader.
*/
func (c *LoadingCache[K, V]) GetAllWith(ctx context.Context, keys []K, bulk types.BulkLoader[K, V]) (map[K]V, error) {
	if bulk == nil {
		return c.getAllSingly(ctx, keys, c.loader)
	}

	order := dedupe(keys)
	result, misses := c.partition(order)
	if len(misses) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewCancellationError(misses, err)
	}

	loaded, failed, loadErr := c.engine.LoadAll(ctx, misses, bulk)
	for k, v := range loaded {
		got, err := c.doFlight(ctx, k, func() (V, []notification[K, V], error) {
			live, ns := c.install(k, v)
			return live, ns, nil
		})
		if err != nil {
			if errors.As(err, new(*types.CancellationError)) {
				return nil, err
			}

			// We joined another caller's load of k and it failed.
			// Our own value is still good.
			var ns []notification[K, V]
			got, ns = c.install(k, v)
			c.engine.Notify(ns)
		}
		result[k] = got
	}

	if err := ctx.Err(); err != nil {
		return nil, types.NewCancellationError(misses, err)
	}
	return c.finishBatch(ctx, result, failed, len(order), loadErr)
}

/*
getAllSingly is GetAll without a bulk loader.
Every miss is loaded through the single-flight path, a few at a time.
*/
func (c *LoadingCache[K, V]) getAllSingly(ctx context.Context, keys []K, loader types.Loader[K, V]) (map[K]V, error) {
	order := dedupe(keys)
	result, misses := c.partition(order)
	if len(misses) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	failed := make(map[K]error)

	var g errgroup.Group
	g.SetLimit(maxConcurrentLoads)
	for _, k := range misses {
		g.Go(func() error {
			v, err := c.load(ctx, k, loader)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case errors.As(err, new(*types.CancellationError)):
				return err
			case err != nil:
				failed[k] = err
			default:
				result[k] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.finishBatch(ctx, result, failed, len(order), nil)
}

// finishBatch applies the failure mode to a batch result.
func (c *LoadingCache[K, V]) finishBatch(ctx context.Context, result map[K]V, failed map[K]error, requested int, loadErr error) (map[K]V, error) {
	if len(failed) == 0 {
		return result, nil
	}

	if c.mode == BestEffort {
		if loadErr != nil {
			c.engine.Logger.LogAttrs(ctx, slog.LevelWarn, "bulk load failed, returning cached keys only",
				slog.Int("dropped", len(failed)),
				slog.Any("error", loadErr),
			)
		}
		return result, nil
	}

	return nil, &types.BatchLoadError[K]{Failed: failed, Requested: requested}
}

// partition splits keys into the values of live entries and the missing keys.
func (c *LoadingCache[K, V]) partition(keys []K) (map[K]V, []K) {
	result := make(map[K]V, len(keys))
	var misses []K

	for _, k := range keys {
		if ent, ok := c.lookup(k); ok {
			result[k] = ent.Value
			continue
		}
		misses = append(misses, k)
	}

	c.engine.Stats.RecordHits(len(result))
	c.engine.Stats.RecordMisses(len(misses))
	return result, misses
}

// dedupe drops repeated keys, keeping the first occurrence of each.
func dedupe[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
