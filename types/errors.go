package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNilValue is wrapped by a LoadError when a loader returns a nil value.
	ErrNilValue = errors.New("loader returned nil value")

	// ErrNoLoader is wrapped by a LoadError when a load is needed but the
	// cache was built without a loader.
	ErrNoLoader = errors.New("no loader configured")

	// ErrKeyNotLoaded is wrapped by a LoadError for a key a bulk loader did
	// not return.
	ErrKeyNotLoaded = errors.New("bulk loader did not return key")
)

// LoadError is returned when computing the value of Key failed.
// Failures are never cached.
type LoadError struct {
	Key any
	Err error
}

func NewLoadError(key any, err error) *LoadError {
	return &LoadError{Key: key, Err: err}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cache: load %v: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CancellationError is returned when the caller's context ended while it
// was waiting for a value. The load it was waiting on keeps running for the
// other callers.
type CancellationError struct {
	Key any
	Err error
}

func NewCancellationError(key any, err error) *CancellationError {
	return &CancellationError{Key: key, Err: err}
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cache: waiting for %v: %v", e.Key, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// Timeout reports whether the wait ended because of a deadline rather than
// an explicit cancel.
func (e *CancellationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ConfigurationError reports an invalid construction parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cache: invalid %s: %s", e.Field, e.Reason)
}

/*
BatchLoadError is returned by GetAll in all-or-nothing mode when one or more
keys could not be loaded. Failed holds every failed key with its own error.
Keys that did load are still cached.
*/
type BatchLoadError[K comparable] struct {
	Failed    map[K]error
	Requested int
}

func (e *BatchLoadError[K]) Error() string {
	return fmt.Sprintf("cache: %d of %d keys failed to load", len(e.Failed), e.Requested)
}

// Keys returns the failed keys in no particular order.
func (e *BatchLoadError[K]) Keys() []K {
	keys := make([]K, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	return keys
}

func (e *BatchLoadError[K]) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
