package cache

import "fmt"

/*
CompositeKey binds a logical key to the caller's context for one call.

Only the key takes part in identity: two composite keys with the same key
and different contexts are equal, and both resolve to the same cache entry.
A CompositeKey is never stored in the cache. Do not use it as a map key
either: Go map equality would compare the context too.
*/
type CompositeKey[K comparable, C any] struct {
	key     K
	callCtx C
}

// NewCompositeKey binds key to callCtx.
func NewCompositeKey[K comparable, C any](key K, callCtx C) CompositeKey[K, C] {
	return CompositeKey[K, C]{key: key, callCtx: callCtx}
}

// Key returns the logical key.
func (k CompositeKey[K, C]) Key() K { return k.key }

// Context returns the call context bound to the key.
func (k CompositeKey[K, C]) Context() C { return k.callCtx }

// Identity is the value the cache stores the entry under.
func (k CompositeKey[K, C]) Identity() K { return k.key }

// Equal compares logical keys only.
func (k CompositeKey[K, C]) Equal(other CompositeKey[K, C]) bool {
	return k.key == other.key
}

func (k CompositeKey[K, C]) String() string {
	return fmt.Sprintf("CompositeKey{%v}", k.key)
}
