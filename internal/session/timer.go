package session

import (
	"context"
	"time"
)

// runTimer is timer_task (spec.md §4.6): sleeps until the configured
// session duration has elapsed, then requests shutdown.
func (s *Session) runTimer(ctx context.Context) error {
	duration := time.Duration(s.cfg.DurationMin) * time.Minute
	deadline := s.startedAt.Add(duration)
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		s.shutdown.Request(ReasonDurationLimit)
		return nil
	}
}
