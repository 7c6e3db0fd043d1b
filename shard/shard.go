package shard

/*
This file defines what a "Shard" is. A shard is a small, independent piece of the cache.
Splitting the key space keeps every copy-on-write map small, so writes copy
less data, while reads stay lock-free on every shard.
*/

type Shard[K comparable, V any] struct {

	// Store holds the actual key → entry data for this shard.
	// It is a copy-on-write store that allows lock-free reads.
	Store Store[K, V]
}

func NewShard[K comparable, V any]() *Shard[K, V] {
	return &Shard[K, V]{Store: NewCOWStore[K, V]()}
}

// NewShards creates n empty shards.
func NewShards[K comparable, V any](n int) []*Shard[K, V] {
	s := make([]*Shard[K, V], n)
	for i := range s {
		s[i] = NewShard[K, V]()
	}
	return s
}
