// Package circuitbreaker protects the engine from a failing risk fact store.
// After a run of consecutive transport failures the breaker opens and callers
// short-circuit to "unknown" instead of waiting on timeouts for every fact.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrOpen is returned by Allow while the circuit is open
var ErrOpen = errors.New("circuit breaker open: fact store protection engaged")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are short-circuited
	StateHalfOpen              // Probing whether the dependency recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// Consecutive failures that open the circuit
	FailureThreshold int `json:"failure_threshold"`
}

// DefaultThresholds trips after five consecutive failures
func DefaultThresholds() Thresholds {
	return Thresholds{FailureThreshold: 5}
}

// CircuitBreaker implements the circuit breaker pattern around a remote dependency.
type CircuitBreaker struct {
	thresholds Thresholds

	state State

	// Timestamp of the last circuit trip
	lastTrip time.Time

	// Duration before a half-open probe is allowed
	resetDelay time.Duration

	mu sync.RWMutex

	// Consecutive failures while closed
	failures int

	// Count of consecutive successful calls in HalfOpen state
	successCount int

	// Number of successful calls required to close the circuit
	successThreshold int

	// Event callback for monitoring/alerting
	onTripCallback func(reason string)

	now func() time.Time
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	if t.FailureThreshold <= 0 {
		t.FailureThreshold = DefaultThresholds().FailureThreshold
	}
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       30 * time.Second,
		successThreshold: 1,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful probes needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	if threshold > 0 {
		cb.successThreshold = threshold
	}
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Allow reports whether a call may proceed. While open it returns ErrOpen
// until the reset delay has passed, then moves to half-open and lets calls
// through as probes.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.RLock()
	state := cb.state
	lastTripTime := cb.lastTrip
	cb.mu.RUnlock()

	if state != StateOpen {
		return nil
	}
	if cb.now().Sub(lastTripTime) >= cb.resetDelay {
		cb.transitionToHalfOpen()
		return nil
	}
	return ErrOpen
}

// RecordSuccess notes a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: fact store has recovered")
		}
	}
}

// RecordFailure notes a failed call and trips the circuit once the threshold
// is reached. Any failure while half-open reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure(cause error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.trip(fmt.Sprintf("probe failed: %v", cause))
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.thresholds.FailureThreshold {
			cb.trip(fmt.Sprintf("%d consecutive failures, last: %v", cb.failures, cause))
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	logrus.Info("Circuit breaker manually reset to closed state")
}

// transitionToHalfOpen changes the circuit state to half-open for testing recovery
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: probing fact store")
	}
}

// trip sets the circuit breaker to open state; callers hold the lock
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.failures = 0
	cb.successCount = 0
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason)
	}
}
