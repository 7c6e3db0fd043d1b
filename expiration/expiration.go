// This file defines how cache entries expire over time.

package expiration

import (
	"time"

	"github.com/krisalay/loading-cache/types"
)

/*
Strategy is the interface that all expiration rules must follow. Instead of hard-coding
expiration logic into the cache, we define a strategy so expiration behavior can be swapped easily.

Strategies only read entry timestamps. The cache owns the timestamps and
sets them on write and read.
*/
type Strategy[K comparable, V any] interface {

	// IsExpired checks if the entry is expired at now.
	IsExpired(ent *types.Entry[K, V], now time.Time) bool

	// OnAccess is called whenever a cache entry is read successfully.
	OnAccess(ent *types.Entry[K, V], now time.Time)
}

// Never is the strategy used when no time-to-live is configured.
type Never[K comparable, V any] struct{}

func (Never[K, V]) IsExpired(*types.Entry[K, V], time.Time) bool { return false }
func (Never[K, V]) OnAccess(*types.Entry[K, V], time.Time)       {}

// Chain expires an entry as soon as any of its strategies does.
type Chain[K comparable, V any] []Strategy[K, V]

func (c Chain[K, V]) IsExpired(ent *types.Entry[K, V], now time.Time) bool {
	for _, s := range c {
		if s.IsExpired(ent, now) {
			return true
		}
	}
	return false
}

func (c Chain[K, V]) OnAccess(ent *types.Entry[K, V], now time.Time) {
	for _, s := range c {
		s.OnAccess(ent, now)
	}
}

// New builds the strategy for the given durations. A zero duration means
// the rule is not used.
func New[K comparable, V any](afterWrite, afterAccess time.Duration) Strategy[K, V] {
	var chain Chain[K, V]
	if afterWrite > 0 {
		chain = append(chain, &ExpireAfterWrite[K, V]{TTL: afterWrite})
	}
	if afterAccess > 0 {
		chain = append(chain, &ExpireAfterAccess[K, V]{TTL: afterAccess})
	}

	switch len(chain) {
	case 0:
		return Never[K, V]{}
	case 1:
		return chain[0]
	default:
		return chain
	}
}
