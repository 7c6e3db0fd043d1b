// This file implements FIFO eviction.

package eviction

type fifo[K comparable] struct {
	// order keeps keys in insertion order. The tail is the oldest key.
	order list[K]

	// nodes keeps track of which keys are currently queued.
	nodes map[K]*node[K]
}

func newFIFO[K comparable]() *fifo[K] {
	return &fifo[K]{nodes: make(map[K]*node[K])}
}

// OnGet is ignored: FIFO does not care about reads.
func (f *fifo[K]) OnGet(K) {}

// OnPut queues a new key. FIFO only cares about the first insertion, so a
// tracked key keeps its place.
func (f *fifo[K]) OnPut(k K) {
	if _, ok := f.nodes[k]; ok {
		return
	}
	n := &node[K]{key: k}
	f.nodes[k] = n
	f.order.pushFront(n)
}

// Evict returns the oldest inserted key.
func (f *fifo[K]) Evict() (K, bool) {
	n := f.order.tail
	if n == nil {
		var zero K
		return zero, false
	}
	f.order.remove(n)
	delete(f.nodes, n.key)
	return n.key, true
}

// Remove drops a key that left the cache for another reason.
func (f *fifo[K]) Remove(k K) {
	if n, ok := f.nodes[k]; ok {
		f.order.remove(n)
		delete(f.nodes, k)
	}
}

func (f *fifo[K]) Len() int { return f.order.len }
