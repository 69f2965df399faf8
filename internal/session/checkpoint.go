package session

import (
	"context"
	"time"

	"tradesession/internal/domain"
	"tradesession/pkg/telemetry"
)

const circuitBreakerStateKey = "circuit_breaker"

// circuitBreakerCheckpoint is the checkpoint_task's own persisted record
// of the error breaker's state, stored under circuitBreakerStateKey beside
// the broker's snapshot. The broker snapshot's SessionState.CircuitBreaker
// field is not filled in.
type circuitBreakerCheckpoint struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure_ts"`
}

// runCheckpoint is checkpoint_task (spec.md §4.6): every CheckpointInterval
// (spec default 60s) it snapshots the error circuit breaker and forces the
// broker to persist its own state (starting equity, position, working
// orders, processed ids all live there already).
func (s *Session) runCheckpoint(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkpoint(ctx)
		}
	}
}

// checkpoint snapshots breaker state and forces a broker save. The actual
// disk writes run on the offload pool so a slow fsync doesn't stall the
// cooperative loop beyond spec.md §5's 100ms no-yield budget;
// SubmitAndWaitErr keeps the task's own cadence synchronous with the result.
func (s *Session) checkpoint(ctx context.Context) {
	err := s.offloadPool.SubmitAndWaitErr(func() error {
		snap := circuitBreakerCheckpoint{
			State:       s.errorCB.State().String(),
			Failures:    s.errorCB.Failures(),
			LastFailure: s.errorCB.LastFailure(),
		}
		if err := s.stateMgr.Set(circuitBreakerStateKey, snap); err != nil {
			return err
		}
		if err := s.stateMgr.Save(); err != nil {
			return err
		}
		return s.broker.SaveState()
	})
	if err != nil {
		s.checkpointError(err)
		return
	}
	telemetry.GetGlobalMetrics().RecordCheckpoint(ctx, s.cfg.Symbol)
}

func (s *Session) checkpointError(err error) {
	s.logger.Error("checkpoint failed", "error", err.Error())
	s.appendEvent(domain.EventCheckpointError, map[string]interface{}{"error": err.Error()})
}
