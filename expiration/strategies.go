package expiration

import (
	"time"

	"github.com/krisalay/loading-cache/types"
)

/*
ExpireAfterWrite is a fixed time-to-live counted from the last write.
Reads do not extend it. An entry is expired once now - WrittenAt >= TTL.
*/
type ExpireAfterWrite[K comparable, V any] struct {
	TTL time.Duration
}

func (e *ExpireAfterWrite[K, V]) IsExpired(ent *types.Entry[K, V], now time.Time) bool {
	return now.Sub(ent.WrittenAt) >= e.TTL
}

func (e *ExpireAfterWrite[K, V]) OnAccess(*types.Entry[K, V], time.Time) {}

/*
ExpireAfterAccess implements a very common cache behavior called "expire after access" or "sliding TTL".
Every time someone reads the data, the expiration timer is pushed forward. As long as the data keeps
getting used, it stays alive. If nobody touches it for a while, it expires.
*/
type ExpireAfterAccess[K comparable, V any] struct {

	// TTL defines how long the entry should remain valid AFTER it is last read or written.
	TTL time.Duration
}

func (e *ExpireAfterAccess[K, V]) IsExpired(ent *types.Entry[K, V], now time.Time) bool {
	return now.Sub(ent.AccessedAt()) >= e.TTL
}

// OnAccess pushes the expiry forward by recording the read.
func (e *ExpireAfterAccess[K, V]) OnAccess(ent *types.Entry[K, V], now time.Time) {
	ent.Touch(now)
}
