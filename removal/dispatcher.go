// Package removal delivers removal notifications to the cache's observer.
package removal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/krisalay/loading-cache/types"
)

/*
Listener observes entries leaving the cache.

A returned error, or a panic, is a listener failure. Failures are logged and
counted by the dispatcher and never reach the cache call that caused the
removal.
*/
type Listener[K comparable, V any] func(types.RemovalNotification[K, V]) error

/*
Dispatcher is the contract between the cache and the listener.
The cache collects notifications while it holds its write mutex and
dispatches them after releasing it, so a listener may call back into the
cache.

Different systems have different needs:
- Some want the listener to run inline (Sync)
- Some want removals never to wait on the listener (Async)
*/
type Dispatcher[K comparable, V any] interface {

	/*
		Dispatch hands one notification to the listener.
	*/
	Dispatch(types.RemovalNotification[K, V])

	/*
		Failures returns how many listener calls failed so far.
	*/
	Failures() uint64

	/*
		Close is called when the cache is shutting down.
	*/
	Close()
}

// deliverer runs the listener and absorbs its failures.
type deliverer[K comparable, V any] struct {
	listener Listener[K, V]
	logger   *slog.Logger
	failures atomic.Uint64
}

func (d *deliverer[K, V]) deliver(n types.RemovalNotification[K, V]) {
	if err := d.call(n); err != nil {
		d.failures.Add(1)
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "removal listener failed",
			slog.String("key", fmt.Sprint(n.Key)),
			slog.String("cause", n.Cause.String()),
			slog.Any("error", err),
		)
	}
}

func (d *deliverer[K, V]) call(n types.RemovalNotification[K, V]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return d.listener(n)
}

func (d *deliverer[K, V]) Failures() uint64 { return d.failures.Load() }

// Discard is the dispatcher used when no listener is registered.
type Discard[K comparable, V any] struct{}

func (Discard[K, V]) Dispatch(types.RemovalNotification[K, V]) {}
func (Discard[K, V]) Failures() uint64                         { return 0 }
func (Discard[K, V]) Close()                                   {}

// New picks a dispatcher: Discard without a listener, Sync when buffer is
// zero, Async otherwise.
func New[K comparable, V any](l Listener[K, V], buffer int, logger *slog.Logger) Dispatcher[K, V] {
	switch {
	case l == nil:
		return Discard[K, V]{}
	case buffer > 0:
		return NewAsync(l, buffer, logger)
	default:
		return NewSync(l, logger)
	}
}
