package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(maxFailures int) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: maxFailures, Timeout: time.Minute, HalfOpenMaxRequests: 1}, "test", nil)
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	testErr := errors.New("test error")
	fail := func(context.Context) error { return testErr }

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Call(t.Context(), fail), testErr)
		assert.Equal(t, StateClosed, cb.State())
	}
	require.ErrorIs(t, cb.Call(t.Context(), fail), testErr)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(t.Context(), func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(1)
	require.Error(t, cb.Call(t.Context(), func(context.Context) error { return errors.New("down") }))
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(t.Context(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1)
	down := func(context.Context) error { return errors.New("down") }
	require.Error(t, cb.Call(t.Context(), down))

	*now = now.Add(2 * time.Minute)
	require.Error(t, cb.Call(t.Context(), down))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _ := newTestBreaker(1)
	require.ErrorIs(t, cb.Call(t.Context(), func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
