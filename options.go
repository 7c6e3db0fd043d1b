package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/krisalay/loading-cache/eviction"
	"github.com/krisalay/loading-cache/removal"
	"github.com/krisalay/loading-cache/types"
)

// DefaultShards is the shard count used when Config.Shards is zero.
const DefaultShards = 16

// BulkLoadFailureMode decides what GetAll does with keys that failed to load.
type BulkLoadFailureMode int

const (
	// AllOrNothing fails the whole GetAll with a *types.BatchLoadError when
	// any key failed. Keys that did load are still cached.
	AllOrNothing BulkLoadFailureMode = iota

	// BestEffort drops failed keys from the result and returns the rest.
	BestEffort
)

func (m BulkLoadFailureMode) String() string {
	switch m {
	case AllOrNothing:
		return "ALL_OR_NOTHING"
	case BestEffort:
		return "BEST_EFFORT"
	default:
		return fmt.Sprintf("BulkLoadFailureMode(%d)", int(m))
	}
}

/*
Config is the construction record of a LoadingCache.
It is copied by New and never read again afterwards, so changing a Config
after New has no effect on the cache.

The zero value is a valid, unbounded cache that never expires entries.
*/
type Config struct {

	// MaximumSize bounds the number of entries. Zero means unbounded.
	MaximumSize int

	// ExpireAfterWrite removes entries this long after their last write.
	// Zero disables it.
	ExpireAfterWrite time.Duration

	// ExpireAfterAccess removes entries this long after their last read or
	// write. Zero disables it.
	ExpireAfterAccess time.Duration

	BulkLoadFailureMode BulkLoadFailureMode

	// Eviction picks which entry leaves when MaximumSize is exceeded.
	// Empty means eviction.LRU.
	Eviction eviction.PolicyType

	// Shards is the number of copy-on-write maps keys are spread over.
	Shards int

	// CleanupInterval starts a background sweep of expired entries.
	// Without it expired entries are removed when they are looked up or
	// when CleanUp is called.
	CleanupInterval time.Duration

	// AsyncRemovalBuffer delivers removal notifications from a background
	// goroutine. The value sizes its initial queue; the queue grows instead
	// of blocking. Zero calls the listener inline.
	AsyncRemovalBuffer int

	// Clock is the time source used for expiry. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Validate reports the first invalid field as a *types.ConfigurationError.
func (c Config) Validate() error {
	switch {
	case c.MaximumSize < 0:
		return &types.ConfigurationError{Field: "MaximumSize", Reason: "must not be negative"}
	case c.ExpireAfterWrite < 0:
		return &types.ConfigurationError{Field: "ExpireAfterWrite", Reason: "must not be negative"}
	case c.ExpireAfterAccess < 0:
		return &types.ConfigurationError{Field: "ExpireAfterAccess", Reason: "must not be negative"}
	case c.Shards < 0:
		return &types.ConfigurationError{Field: "Shards", Reason: "must not be negative"}
	case c.CleanupInterval < 0:
		return &types.ConfigurationError{Field: "CleanupInterval", Reason: "must not be negative"}
	case c.AsyncRemovalBuffer < 0:
		return &types.ConfigurationError{Field: "AsyncRemovalBuffer", Reason: "must not be negative"}
	case c.Eviction != "" && !c.Eviction.Valid():
		return &types.ConfigurationError{Field: "Eviction", Reason: fmt.Sprintf("unknown policy %q", c.Eviction)}
	case c.BulkLoadFailureMode != AllOrNothing && c.BulkLoadFailureMode != BestEffort:
		return &types.ConfigurationError{Field: "BulkLoadFailureMode", Reason: c.BulkLoadFailureMode.String()}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Eviction == "" {
		c.Eviction = eviction.LRU
	}
	if c.Shards == 0 {
		c.Shards = DefaultShards
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Option carries the functions injected into a LoadingCache.
type Option[K comparable, V any] func(*options[K, V])

type options[K comparable, V any] struct {
	listener removal.Listener[K, V]
	bulk     types.BulkLoader[K, V]
}

// WithRemovalListener registers the single observer of removals.
func WithRemovalListener[K comparable, V any](l removal.Listener[K, V]) Option[K, V] {
	return func(o *options[K, V]) {
		o.listener = l
	}
}

// WithBulkLoader makes GetAll load all misses with one call.
// Without it GetAll loads misses one by one through the cache's loader.
func WithBulkLoader[K comparable, V any](b types.BulkLoader[K, V]) Option[K, V] {
	return func(o *options[K, V]) {
		o.bulk = b
	}
}
