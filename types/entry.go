package types

import (
	"sync/atomic"
	"time"
)

/*
Entry is one key → value mapping owned by the cache.

An entry is built completely before it is published to a shard and is
never mutated afterwards, with one exception: the access time. Reads are
lock-free, so the access time is kept in an atomic.
*/
type Entry[K comparable, V any] struct {
	Key   K
	Value V

	// CreatedAt is when the key was first inserted.
	// It survives replacement of the value.
	CreatedAt time.Time

	// WrittenAt is when the current value was written.
	WrittenAt time.Time

	accessedAt atomic.Int64 // unix nanos
}

// NewEntry builds an entry written at now.
func NewEntry[K comparable, V any](key K, value V, now time.Time) *Entry[K, V] {
	ent := &Entry[K, V]{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		WrittenAt: now,
	}
	ent.accessedAt.Store(now.UnixNano())
	return ent
}

// AccessedAt returns the last time the entry was read or written.
func (e *Entry[K, V]) AccessedAt() time.Time {
	return time.Unix(0, e.accessedAt.Load())
}

// Touch records a read at now.
func (e *Entry[K, V]) Touch(now time.Time) {
	e.accessedAt.Store(now.UnixNano())
}
