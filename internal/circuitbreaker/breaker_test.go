package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("connection refused")

func TestCircuitBreaker_BasicFunctionality(t *testing.T) {
	cb := New(Thresholds{FailureThreshold: 3}).WithResetDelay(50 * time.Millisecond)
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit breaker should start closed")

	assert.NoError(t, cb.Allow(), "Closed circuit should allow calls")
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit should remain closed after success")
}

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := New(Thresholds{FailureThreshold: 3})

	cb.RecordFailure(errTransport)
	cb.RecordFailure(errTransport)
	assert.Equal(t, StateClosed, cb.GetState(), "Two failures should not trip a threshold of three")
	assert.Equal(t, 2, cb.Failures())

	cb.RecordFailure(errTransport)
	assert.Equal(t, StateOpen, cb.GetState(), "Circuit should be open after threshold")

	err := cb.Allow()
	assert.ErrorIs(t, err, ErrOpen, "Open circuit should short-circuit calls")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Thresholds{FailureThreshold: 3})

	cb.RecordFailure(errTransport)
	cb.RecordFailure(errTransport)
	cb.RecordSuccess()
	cb.RecordFailure(errTransport)
	cb.RecordFailure(errTransport)

	assert.Equal(t, StateClosed, cb.GetState(), "Failures must be consecutive to trip")
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	cb := New(Thresholds{FailureThreshold: 1}).
		WithResetDelay(50 * time.Millisecond).
		WithSuccessThreshold(1)

	cb.RecordFailure(errTransport)
	require.Equal(t, StateOpen, cb.GetState(), "Circuit should be open after trip")

	time.Sleep(60 * time.Millisecond)

	assert.NoError(t, cb.Allow(), "Probe should be allowed after reset delay")
	assert.Equal(t, StateHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit should close after a successful probe")
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := New(Thresholds{FailureThreshold: 5}).WithResetDelay(20 * time.Millisecond)

	for i := 0; i < 5; i++ {
		cb.RecordFailure(errTransport)
	}
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.RecordFailure(errTransport)
	assert.Equal(t, StateOpen, cb.GetState(), "A single failed probe should reopen the circuit")
	assert.ErrorIs(t, cb.Allow(), ErrOpen)
}

func TestCircuitBreaker_CallbackExecution(t *testing.T) {
	reasons := make(chan string, 1)

	cb := New(Thresholds{FailureThreshold: 2}).WithTripCallback(func(reason string) {
		reasons <- reason
	})

	cb.RecordFailure(errTransport)
	cb.RecordFailure(errTransport)

	select {
	case reason := <-reasons:
		assert.Contains(t, reason, "consecutive failures", "Callback reason should explain the trip")
		assert.Contains(t, reason, "connection refused")
	case <-time.After(time.Second):
		t.Fatal("Callback should be executed when circuit trips")
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := New(Thresholds{FailureThreshold: 1})

	cb.RecordFailure(errTransport)
	require.Equal(t, StateOpen, cb.GetState(), "Circuit should be open after trip")

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit should be closed after manual reset")
	assert.NoError(t, cb.Allow(), "Calls should pass after manual reset")
}

func TestCircuitBreaker_DefaultThreshold(t *testing.T) {
	cb := New(Thresholds{})

	for i := 0; i < DefaultThresholds().FailureThreshold-1; i++ {
		cb.RecordFailure(errTransport)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	cb.RecordFailure(errTransport)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
