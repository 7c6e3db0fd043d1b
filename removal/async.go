package removal

import (
	"log/slog"
	"sync"

	"github.com/krisalay/loading-cache/types"
)

/*
Async hands notifications to a single background worker.

The cache call that removed an entry returns without waiting for the
listener. Notifications are delivered in dispatch order.

Dispatch never blocks. The listener runs on the worker and may call back
into the cache, which dispatches again from the worker itself, so a bounded
queue could fill up with nobody left to drain it. Pending notifications are
kept on a slice that grows past the initial buffer instead.
*/
type Async[K comparable, V any] struct {
	deliverer[K, V]

	// buffer is the initial capacity of each queue.
	buffer int

	mu     sync.Mutex
	queue  []types.RemovalNotification[K, V]
	closed bool

	// wake holds at most one pending signal for the worker.
	wake chan struct{}

	// wg is used to wait for the worker to finish during shutdown.
	wg sync.WaitGroup
}

// NewAsync creates the dispatcher and starts its worker.
func NewAsync[K comparable, V any](l Listener[K, V], buffer int, logger *slog.Logger) *Async[K, V] {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async[K, V]{
		deliverer: deliverer[K, V]{listener: l, logger: logger},
		buffer:    buffer,
		queue:     make([]types.RemovalNotification[K, V], 0, buffer),
		wake:      make(chan struct{}, 1),
	}

	a.wg.Add(1)
	go a.worker()

	return a
}

// Dispatch queues a notification for the worker.
// After Close notifications are delivered inline.
func (a *Async[K, V]) Dispatch(n types.RemovalNotification[K, V]) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.deliver(n)
		return
	}
	a.queue = append(a.queue, n)
	a.mu.Unlock()

	a.signal()
}

func (a *Async[K, V]) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Async[K, V]) worker() {
	defer a.wg.Done()

	for {
		a.mu.Lock()
		batch := a.queue
		closed := a.closed
		if len(batch) > 0 {
			a.queue = make([]types.RemovalNotification[K, V], 0, a.buffer)
		}
		a.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-a.wake
			continue
		}
		for _, n := range batch {
			a.deliver(n)
		}
	}
}

/*
Close shuts the dispatcher down gracefully:
1. Stop accepting notifications into the queue
2. Wait for the worker to deliver everything already queued
*/
func (a *Async[K, V]) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.signal()
	a.wg.Wait()
}
