// This file implements LRU eviction.

package eviction

// lru is the concrete implementation of the LRU eviction policy.
// The list head is the MOST recently used key, the tail the LEAST.
type lru[K comparable] struct {
	// nodes maps cache keys to their list nodes so moves are O(1).
	nodes map[K]*node[K]
	order list[K]
}

func newLRU[K comparable]() *lru[K] {
	return &lru[K]{nodes: make(map[K]*node[K])}
}

// OnGet moves an accessed key to the front of the list.
func (l *lru[K]) OnGet(k K) {
	if n, ok := l.nodes[k]; ok {
		l.order.moveToFront(n)
	}
}

// OnPut adds a new key as most recently used. A key that is already
// tracked is handled like a read.
func (l *lru[K]) OnPut(k K) {
	if n, ok := l.nodes[k]; ok {
		l.order.moveToFront(n)
		return
	}
	n := &node[K]{key: k}
	l.nodes[k] = n
	l.order.pushFront(n)
}

// Evict removes the least recently used key, which is always at the tail.
func (l *lru[K]) Evict() (K, bool) {
	n := l.order.tail
	if n == nil {
		var zero K
		return zero, false
	}
	l.order.remove(n)
	delete(l.nodes, n.key)
	return n.key, true
}

func (l *lru[K]) Remove(k K) {
	if n, ok := l.nodes[k]; ok {
		l.order.remove(n)
		delete(l.nodes, k)
	}
}

func (l *lru[K]) Len() int { return l.order.len }
