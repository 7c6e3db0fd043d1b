package shard

import (
	"sync/atomic"

	"github.com/krisalay/loading-cache/types"
)

/*
This file defines how data is actually stored inside a shard. This is NOT a normal map.
- Reads should be very fast
- Reads should NOT require locks
- Writes are less frequent and can afford extra work

To achieve this, we use a technique called: "Copy-On-Write" (COW)
*/

// Store is the interface used by a shard to store and retrieve cache entries.
// Get and Range may run concurrently with anything; the mutating methods
// must be serialized by the caller.
type Store[K comparable, V any] interface {

	// Get retrieves an entry by key.
	Get(K) (*types.Entry[K, V], bool)

	// Put inserts or replaces an entry and returns the previous one.
	Put(K, *types.Entry[K, V]) (*types.Entry[K, V], bool)

	// Delete removes an entry and returns it.
	Delete(K) (*types.Entry[K, V], bool)

	// DeleteFunc removes every entry for which fn returns true and returns them.
	DeleteFunc(fn func(*types.Entry[K, V]) bool) []*types.Entry[K, V]

	// Clear removes every entry and returns what was stored.
	Clear() []*types.Entry[K, V]

	// Range calls fn for every entry of the current snapshot until fn returns false.
	Range(fn func(*types.Entry[K, V]) bool)

	// Size returns how many entries are stored.
	Size() int
}

/*
cowStore is a Copy-On-Write implementation of Store.

- Readers always see an immutable snapshot
- Writers create a NEW copy of the map
- The new map replaces the old one atomically
*/
type cowStore[K comparable, V any] struct {
	data atomic.Pointer[map[K]*types.Entry[K, V]]
}

func NewCOWStore[K comparable, V any]() Store[K, V] {
	s := &cowStore[K, V]{}
	m := make(map[K]*types.Entry[K, V])
	s.data.Store(&m)
	return s
}

func (s *cowStore[K, V]) load() map[K]*types.Entry[K, V] {
	return *s.data.Load()
}

func (s *cowStore[K, V]) Get(key K) (*types.Entry[K, V], bool) {
	ent, ok := s.load()[key]
	return ent, ok
}

/*
Put inserts or updates an entry in the store. This is where copy-on-write happens.

1. Load the current map
2. Create a NEW map and copy all existing entries
3. Add the new entry
4. Atomically replace the old map
*/
func (s *cowStore[K, V]) Put(key K, ent *types.Entry[K, V]) (*types.Entry[K, V], bool) {
	old := s.load()
	prev, had := old[key]

	n := make(map[K]*types.Entry[K, V], len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[key] = ent

	s.data.Store(&n)
	return prev, had
}

// Delete removes an entry from the store. Just like Put, this uses copy-on-write.
func (s *cowStore[K, V]) Delete(key K) (*types.Entry[K, V], bool) {
	old := s.load()
	prev, had := old[key]
	if !had {
		return nil, false
	}

	n := make(map[K]*types.Entry[K, V], len(old))
	for k, v := range old {
		if k != key {
			n[k] = v
		}
	}

	s.data.Store(&n)
	return prev, true
}

// DeleteFunc removes all matching entries with a single copy.
func (s *cowStore[K, V]) DeleteFunc(fn func(*types.Entry[K, V]) bool) []*types.Entry[K, V] {
	old := s.load()
	var removed []*types.Entry[K, V]
	n := make(map[K]*types.Entry[K, V], len(old))
	for k, v := range old {
		if fn(v) {
			removed = append(removed, v)
			continue
		}
		n[k] = v
	}
	if len(removed) == 0 {
		return nil
	}

	s.data.Store(&n)
	return removed
}

func (s *cowStore[K, V]) Clear() []*types.Entry[K, V] {
	old := s.load()
	out := make([]*types.Entry[K, V], 0, len(old))
	for _, v := range old {
		out = append(out, v)
	}

	m := make(map[K]*types.Entry[K, V])
	s.data.Store(&m)
	return out
}

func (s *cowStore[K, V]) Range(fn func(*types.Entry[K, V]) bool) {
	for _, v := range s.load() {
		if !fn(v) {
			return
		}
	}
}

func (s *cowStore[K, V]) Size() int {
	return len(s.load())
}
