package session

import (
	"context"
	"time"

	"tradesession/internal/safety"
)

// runKillSwitch is kill_switch_task (spec.md §4.6): every KillSwitchInterval
// (spec default 500ms) it checks the kill-switch file/env via the same
// safety.Gates check the broker itself guards fills with. On detection it
// removes the file, requests shutdown, and flags the session so the CLI
// wrapper exits with code 99 (spec.md §6).
func (s *Session) runKillSwitch(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.KillSwitchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.gates.CheckKillSwitch() {
				if err := safety.RemoveKillSwitchFile(s.cfg.StateDir); err != nil {
					s.logger.Warn("failed to remove kill switch file", "error", err.Error())
				}
				s.killHit.Store(true)
				s.shutdown.Request(ReasonKillSwitch)
				return nil
			}
		}
	}
}
