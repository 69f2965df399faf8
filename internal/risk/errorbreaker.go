package risk

import (
	"errors"
	"sync"
	"time"
	"tradesession/pkg/telemetry"
)

// ErrCircuitOpen is returned by ErrorCircuitBreaker.Call when the breaker is
// OPEN and fails fast without invoking the wrapped call.
var ErrCircuitOpen = errors.New("circuit open")

// ErrorState is one of the three states an ErrorCircuitBreaker can be in.
type ErrorState int

const (
	StateClosed ErrorState = iota
	StateOpen
	StateHalfOpen
)

func (s ErrorState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// ErrorCircuitConfig configures the provider-call breaker.
type ErrorCircuitConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// ErrorCircuitBreaker wraps flaky external (provider) calls. It is distinct
// from TradingCircuitBreaker: this one reacts to call failures, not equity.
//
// State machine: CLOSED -> OPEN after MaxFailures consecutive failures.
// OPEN -> HALF_OPEN once ResetTimeout has elapsed since the last failure,
// allowing exactly one trial call through. A HALF_OPEN success -> CLOSED
// with the failure counter reset; a HALF_OPEN failure -> OPEN again with a
// fresh timestamp.
type ErrorCircuitBreaker struct {
	mu            sync.Mutex
	config        ErrorCircuitConfig
	state         ErrorState
	failures      int
	lastFailure   time.Time
	halfOpenTrial bool
}

// NewErrorCircuitBreaker creates a breaker in the CLOSED state.
func NewErrorCircuitBreaker(config ErrorCircuitConfig) *ErrorCircuitBreaker {
	return &ErrorCircuitBreaker{config: config, state: StateClosed}
}

// AllowRequest reports whether a call should be attempted right now. In OPEN
// state it transitions to HALF_OPEN (admitting exactly one trial) once the
// reset timeout has elapsed.
func (cb *ErrorCircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		// Only one trial is admitted at a time; further callers wait.
		if cb.halfOpenTrial {
			return false
		}
		cb.halfOpenTrial = true
		return true
	default: // StateOpen
		if time.Since(cb.lastFailure) > cb.config.ResetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenTrial = true
			return true
		}
		return false
	}
}

// RecordSuccess reports a successful call.
func (cb *ErrorCircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
	}
	cb.failures = 0
	cb.halfOpenTrial = false
	telemetry.GetGlobalMetrics().SetErrorBreakerOpen("global", cb.state == StateOpen)
}

// RecordFailure reports a failed call, tripping the breaker to OPEN when the
// failure threshold is reached (or immediately, from HALF_OPEN).
func (cb *ErrorCircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.halfOpenTrial = false
	cb.lastFailure = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		telemetry.GetGlobalMetrics().SetErrorBreakerOpen("global", true)
		return
	}

	cb.failures++
	if cb.failures >= cb.config.MaxFailures {
		cb.state = StateOpen
		telemetry.GetGlobalMetrics().SetErrorBreakerOpen("global", true)
	}
}

// State returns the current state, for checkpointing and diagnostics.
func (cb *ErrorCircuitBreaker) State() ErrorState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *ErrorCircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// LastFailure returns the timestamp of the most recent recorded failure.
func (cb *ErrorCircuitBreaker) LastFailure() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailure
}

// Call wraps fn with the breaker: fails fast with ErrCircuitOpen if the
// breaker does not admit the request, otherwise invokes fn and records the
// outcome.
func (cb *ErrorCircuitBreaker) Call(fn func() error) error {
	if !cb.AllowRequest() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
