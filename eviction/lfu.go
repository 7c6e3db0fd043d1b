// This file implements LFU eviction.

package eviction

type lfu[K comparable] struct {
	// nodes lets us quickly find the node for a key
	nodes map[K]*node[K]

	// buckets groups keys by how many times they were accessed.
	// Inside a bucket the tail is the key that entered it first.
	buckets map[int]*list[K]

	// minFreq keeps track of the smallest frequency currently present.
	// This avoids scanning every bucket on eviction.
	minFreq int
}

func newLFU[K comparable]() *lfu[K] {
	return &lfu[K]{
		nodes:   make(map[K]*node[K]),
		buckets: make(map[int]*list[K]),
	}
}

// OnGet moves a key to the next frequency bucket.
func (l *lfu[K]) OnGet(k K) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}

	old := n.freq
	l.unlink(n)
	if l.minFreq == old && l.buckets[old] == nil {
		l.minFreq++
	}

	n.freq++
	l.bucket(n.freq).pushFront(n)
}

// OnPut starts a new key at frequency 1.
func (l *lfu[K]) OnPut(k K) {
	if _, ok := l.nodes[k]; ok {
		return
	}

	n := &node[K]{key: k, freq: 1}
	l.nodes[k] = n
	l.bucket(1).pushFront(n)

	// Since a new key with freq=1 exists, minFreq must be 1
	l.minFreq = 1
}

// Evict removes the oldest key among those with the lowest frequency.
func (l *lfu[K]) Evict() (K, bool) {
	var zero K
	if len(l.nodes) == 0 {
		return zero, false
	}

	b := l.buckets[l.minFreq]
	if b == nil {
		l.resetMin()
		b = l.buckets[l.minFreq]
	}

	n := b.tail
	l.unlink(n)
	delete(l.nodes, n.key)
	if l.buckets[l.minFreq] == nil {
		l.resetMin()
	}
	return n.key, true
}

// Remove drops a key that left the cache for another reason.
func (l *lfu[K]) Remove(k K) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	l.unlink(n)
	delete(l.nodes, k)
	if n.freq == l.minFreq && l.buckets[n.freq] == nil {
		l.resetMin()
	}
}

func (l *lfu[K]) Len() int { return len(l.nodes) }

func (l *lfu[K]) bucket(freq int) *list[K] {
	b, ok := l.buckets[freq]
	if !ok {
		b = &list[K]{}
		l.buckets[freq] = b
	}
	return b
}

// unlink removes n from its bucket and drops the bucket when it empties.
func (l *lfu[K]) unlink(n *node[K]) {
	b := l.buckets[n.freq]
	b.remove(n)
	if b.len == 0 {
		delete(l.buckets, n.freq)
	}
}

// resetMin recomputes minFreq after the smallest bucket disappeared.
func (l *lfu[K]) resetMin() {
	l.minFreq = 0
	for f := range l.buckets {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}
