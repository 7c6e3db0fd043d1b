package eviction

// node is one key in an intrusive doubly-linked list.
type node[K comparable] struct {
	key  K
	prev *node[K]
	next *node[K]

	// freq is only used by LFU.
	freq int
}

// list keeps nodes ordered from head (newest) to tail (oldest).
type list[K comparable] struct {
	head *node[K]
	tail *node[K]
	len  int
}

// pushFront adds a node to the front of the list.
func (l *list[K]) pushFront(n *node[K]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n

	// If the list was empty, head and tail are the same
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

// remove unlinks a node, fixing head and tail if needed.
func (l *list[K]) remove(n *node[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}

// moveToFront marks the node as the newest.
func (l *list[K]) moveToFront(n *node[K]) {
	if l.head == n {
		return
	}
	l.remove(n)
	l.pushFront(n)
}
