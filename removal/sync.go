package removal

import (
	"log/slog"

	"github.com/krisalay/loading-cache/types"
)

/*
Sync calls the listener on the goroutine that removed the entry.

So the flow is: cache removal → listener (synchronous) → cache call returns.
If the listener is slow, the removing call becomes slow.
*/
type Sync[K comparable, V any] struct {
	deliverer[K, V]
}

func NewSync[K comparable, V any](l Listener[K, V], logger *slog.Logger) *Sync[K, V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync[K, V]{deliverer: deliverer[K, V]{listener: l, logger: logger}}
}

func (s *Sync[K, V]) Dispatch(n types.RemovalNotification[K, V]) {
	s.deliver(n)
}

// Close has nothing to release: Sync does not use background workers.
func (s *Sync[K, V]) Close() {}
