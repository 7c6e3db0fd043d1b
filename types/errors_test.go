package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadError_Unwrap(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("lookup: %w", NewLoadError("user:1", cause))

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "user:1", le.Key)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cache: load user:1: db down", le.Error())
}

func TestCancellationError_Timeout(t *testing.T) {
	tests := map[string]struct {
		cause   error
		timeout bool
	}{
		"deadline": {cause: context.DeadlineExceeded, timeout: true},
		"canceled": {cause: context.Canceled, timeout: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewCancellationError("k", tc.cause)
			assert.Equal(t, tc.timeout, err.Timeout())
			assert.ErrorIs(t, err, tc.cause)

			var le *LoadError
			assert.False(t, errors.As(err, &le), "cancellation must not look like a load failure")
		})
	}
}

func TestBatchLoadError(t *testing.T) {
	missing := NewLoadError("b", ErrKeyNotLoaded)
	failed := NewLoadError("c", errors.New("boom"))
	err := &BatchLoadError[string]{
		Failed:    map[string]error{"b": missing, "c": failed},
		Requested: 3,
	}

	assert.Equal(t, "cache: 2 of 3 keys failed to load", err.Error())
	assert.ElementsMatch(t, []string{"b", "c"}, err.Keys())
	assert.ErrorIs(t, err, ErrKeyNotLoaded)

	var le *LoadError
	require.ErrorAs(t, err, &le)
}

func TestConfigurationError(t *testing.T) {
	err := &ConfigurationError{Field: "MaximumSize", Reason: "must not be negative"}
	assert.Equal(t, "cache: invalid MaximumSize: must not be negative", err.Error())
}

func TestRemovalCause(t *testing.T) {
	assert.Equal(t, "EXPLICIT", Explicit.String())
	assert.Equal(t, "REPLACED", Replaced.String())
	assert.Equal(t, "SIZE", Size.String())
	assert.Equal(t, "EXPIRED", Expired.String())
	assert.Equal(t, "RemovalCause(9)", RemovalCause(9).String())

	assert.False(t, Explicit.WasEvicted())
	assert.False(t, Replaced.WasEvicted())
	assert.True(t, Size.WasEvicted())
	assert.True(t, Expired.WasEvicted())
}
