package shard

import "hash/maphash"

/*
This file decides HOW a cache key is assigned to a shard.
If every request went to the same shard, that shard would become a bottleneck.
*/

// Selector decides which shard should handle a given key.
type Selector[K comparable] interface {
	Index(key K, shards int) int
}

/*
HashSelector spreads keys with hash/maphash. The hash is not cryptographic
and the seed is random per selector, so shard assignment is stable for the
life of one cache only.
*/
type HashSelector[K comparable] struct {
	seed maphash.Seed
}

func NewHashSelector[K comparable]() *HashSelector[K] {
	return &HashSelector[K]{seed: maphash.MakeSeed()}
}

func (h *HashSelector[K]) Index(key K, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(maphash.Comparable(h.seed, key) % uint64(shards))
}
