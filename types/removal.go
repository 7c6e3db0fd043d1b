package types

import "fmt"

// RemovalCause is the reason an entry left the cache.
type RemovalCause int

const (
	// Explicit: the entry was removed by Invalidate, InvalidateKeys or InvalidateAll.
	Explicit RemovalCause = iota

	// Replaced: the value was overwritten by Put or by a reload.
	Replaced

	// Size: the entry was evicted because the cache exceeded its maximum size.
	Size

	// Expired: the entry outlived its time-to-live.
	Expired
)

func (c RemovalCause) String() string {
	switch c {
	case Explicit:
		return "EXPLICIT"
	case Replaced:
		return "REPLACED"
	case Size:
		return "SIZE"
	case Expired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("RemovalCause(%d)", int(c))
	}
}

// WasEvicted reports whether the removal was done by the cache itself
// rather than by a caller.
func (c RemovalCause) WasEvicted() bool {
	return c == Size || c == Expired
}

// RemovalNotification describes one removed entry. Value is the last value
// the entry held.
type RemovalNotification[K comparable, V any] struct {
	Key   K
	Value V
	Cause RemovalCause
}

func (n RemovalNotification[K, V]) String() string {
	return fmt.Sprintf("%v=%v [%s]", n.Key, n.Value, n.Cause)
}
