package session

import "sync"

// Reason tags why a session is shutting down. Spec.md §4.5: "Shutdown is
// idempotent: only the first reason sticks."
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonManualStop        Reason = "manual_stop"
	ReasonTaskFailed        Reason = "task_failed"
	ReasonDurationLimit     Reason = "duration_limit"
	ReasonKillSwitch        Reason = "kill_switch"
	ReasonStaleData         Reason = "stale_data"
	ReasonCircuitOpen       Reason = "circuit_breaker_open"
	ReasonWatchdogFrozen    Reason = "watchdog_frozen"
	ReasonErrorBudget       Reason = "error_budget"
	ReasonMemoryLimit       Reason = "memory_limit_exceeded"
)

// shutdownState is the process-scoped shutdown event every cooperative
// task polls at its natural suspension points (spec.md §5). Only the first
// call to Request sticks; later calls are no-ops.
type shutdownState struct {
	once   sync.Once
	ch     chan struct{}
	mu     sync.Mutex
	reason Reason
}

func newShutdownState() *shutdownState {
	return &shutdownState{ch: make(chan struct{})}
}

// Request sets reason as the shutdown cause and closes Done, unless a
// reason was already recorded.
func (s *shutdownState) Request(reason Reason) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.ch)
	})
}

// Done reports when shutdown has been requested.
func (s *shutdownState) Done() <-chan struct{} {
	return s.ch
}

// Reason returns the sticky shutdown cause, or ReasonNone if shutdown has
// not been requested yet.
func (s *shutdownState) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Requested reports whether shutdown has already been requested, without
// blocking.
func (s *shutdownState) Requested() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
