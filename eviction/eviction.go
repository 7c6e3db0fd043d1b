package eviction

/*
This file defines how the cache decides what to remove when it grows past its maximum size.
*/

/*
Policy is the interface that all eviction strategies must follow.

This is a set of rules that any eviction algorithm (LRU, LFU, FIFO, etc.) must obey
so the rest of the cache can interact with it in a uniform way.

Policies are NOT safe for concurrent use. The cache calls them while holding its
write mutex.
*/
type Policy[K comparable] interface {

	// OnGet is called whenever a key is read from the cache.
	//
	// Some eviction strategies care about reads.
	// For example:
	// - LRU needs to know what was accessed recently
	// - LFU counts accesses
	//
	// FIFO ignores this.
	OnGet(K)

	// OnPut is called whenever a key is added to the cache.
	// Keys that are already tracked keep their position.
	OnPut(K)

	// Remove is called when a key leaves the cache for any reason other
	// than Evict (invalidation, expiry).
	Remove(K)

	// Evict picks the next victim and stops tracking it.
	// It returns false when nothing is tracked.
	Evict() (K, bool)

	// Len is the number of tracked keys.
	Len() int
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// LRU (Least Recently Used): Evicts the key that has NOT been accessed for the longest time.
	LRU PolicyType = "LRU"

	// LFU (Least Frequently Used): Evicts the key that has been accessed the fewest times.
	// Among keys with the same count the oldest-inserted goes first.
	LFU PolicyType = "LFU"

	// FIFO (First In First Out): Evicts the oldest inserted key, regardless of access.
	FIFO PolicyType = "FIFO"
)

// Valid reports whether t names a known policy.
func (t PolicyType) Valid() bool {
	switch t {
	case LRU, LFU, FIFO:
		return true
	}
	return false
}

// NewEvictionPolicy is a small factory function.
// Given a PolicyType, it creates the correct eviction policy.
func NewEvictionPolicy[K comparable](t PolicyType) Policy[K] {
	switch t {
	case LRU:
		return newLRU[K]()
	case LFU:
		return newLFU[K]()
	case FIFO:
		return newFIFO[K]()
	default:
		panic("unknown eviction policy: " + string(t))
	}
}
