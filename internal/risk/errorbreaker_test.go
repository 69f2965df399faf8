package risk

import (
	"errors"
	"testing"
	"time"
)

func TestErrorCircuitBreaker_TripsAfterMaxFailures(t *testing.T) {
	cb := NewErrorCircuitBreaker(ErrorCircuitConfig{MaxFailures: 3, ResetTimeout: time.Minute})

	if cb.State() != StateClosed {
		t.Fatal("should start CLOSED")
	}

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("should stay CLOSED below the failure threshold")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Error("should trip OPEN once MaxFailures is reached")
	}
	if cb.AllowRequest() {
		t.Error("OPEN breaker should not admit a request before the reset timeout elapses")
	}
}

func TestErrorCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewErrorCircuitBreaker(ErrorCircuitConfig{MaxFailures: 1, ResetTimeout: time.Millisecond})
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("should be OPEN after 1 failure with MaxFailures=1")
	}

	time.Sleep(5 * time.Millisecond)

	if !cb.AllowRequest() {
		t.Fatal("should admit a trial request once the reset timeout has elapsed")
	}
	if cb.State() != StateHalfOpen {
		t.Fatal("should transition to HALF_OPEN on the trial admission")
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Error("a HALF_OPEN success should close the breaker")
	}
	if cb.Failures() != 0 {
		t.Error("failure count should reset on recovery")
	}
}

func TestErrorCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewErrorCircuitBreaker(ErrorCircuitConfig{MaxFailures: 1, ResetTimeout: time.Millisecond})
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !cb.AllowRequest() {
		t.Fatal("should admit a trial request")
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Error("a HALF_OPEN failure should reopen the breaker")
	}
	if cb.AllowRequest() {
		t.Error("freshly reopened breaker should not admit another request immediately")
	}
}

func TestErrorCircuitBreaker_Call(t *testing.T) {
	cb := NewErrorCircuitBreaker(ErrorCircuitConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	boom := errors.New("boom")
	err := cb.Call(func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}

	err = cb.Call(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while tripped, got %v", err)
	}
}
