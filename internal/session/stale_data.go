package session

import (
	"context"
	"time"
)

// runStaleData is stale_data_task (spec.md §4.6): every StaleCheckInterval
// (spec default 1s), if no candle or tick has arrived within StaleTimeout,
// it requests shutdown. A zero lastDataTs (nothing received yet) is not
// considered stale until StaleTimeout has elapsed since session start.
func (s *Session) runStaleData(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.isStale() {
				s.shutdown.Request(ReasonStaleData)
				return nil
			}
		}
	}
}

func (s *Session) isStale() bool {
	last := s.lastDataTs.Load()
	if last == 0 {
		return time.Since(s.startedAt) > s.cfg.StaleTimeout
	}
	return time.Since(time.Unix(0, last)) > s.cfg.StaleTimeout
}
