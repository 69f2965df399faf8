package session

import (
	"context"
	"runtime"
	"time"

	"tradesession/internal/domain"
	"tradesession/pkg/telemetry"
)

// runHardwareWatchdog is hardware_watchdog_thread (spec.md §4.6, §5): a
// goroutine independent of the cooperative task errgroup, reading only the
// plain atomic timestamp the heartbeat task writes. If the cooperative
// loop stalls (GIL-equivalent contention, a CPU-bound section, deadlock)
// for more than HardwareWatchdogMaxAge, or RSS exceeds MaxMemoryMB, this
// goroutine can still detect it and force the process to exit — it shares
// no lock with the rest of the runtime.
func (s *Session) runHardwareWatchdog(ctx context.Context) {
	// Pin to a dedicated OS thread so the scheduler can't multiplex this
	// loop onto a thread the stalled cooperative tasks are hogging.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(s.cfg.HardwareWatchdogInterval)
	defer ticker.Stop()

	// Seed the heartbeat clock so a slow startup before the first beat
	// doesn't read as an immediate freeze.
	s.lastHeartbeat.CompareAndSwap(0, time.Now().UnixNano())

	for {
		select {
		case <-s.shutdown.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.checkHeartbeatFrozen() {
				return
			}
			if s.checkMemoryLimit() {
				return
			}
		}
	}
}

func (s *Session) checkHeartbeatFrozen() bool {
	last := s.lastHeartbeat.Load()
	if last == 0 {
		return false
	}
	age := time.Since(time.Unix(0, last))
	telemetry.GetGlobalMetrics().SetHeartbeatAge(s.cfg.Symbol, float64(age.Milliseconds()))
	if age <= s.cfg.HardwareWatchdogMaxAge {
		return false
	}

	s.logger.Error("hardware watchdog: cooperative loop frozen", "age", age.String())
	s.appendEvent(domain.EventWatchdogExit, map[string]interface{}{
		"reason": string(ReasonWatchdogFrozen),
		"age_ms": age.Milliseconds(),
	})
	s.shutdown.Request(ReasonWatchdogFrozen)
	s.forceExit(1)
	return true
}

func (s *Session) checkMemoryLimit() bool {
	limit := s.cfg.MaxMemoryMB
	if limit <= 0 {
		return false
	}
	mb := rssMB()
	if mb <= float64(limit) {
		return false
	}

	s.logger.Error("hardware watchdog: memory limit exceeded", "rss_mb", mb, "limit_mb", limit)
	s.appendEvent(domain.EventWatchdogExit, map[string]interface{}{
		"reason": string(ReasonMemoryLimit),
		"rss_mb": mb,
	})
	s.shutdown.Request(ReasonMemoryLimit)
	s.forceExit(1)
	return true
}

// forceExit requests shutdown, gives the cooperative drain a grace window
// to flush state, then force-exits. The grace window is skipped in
// DryRun, where exitFunc is expected to be a no-op test hook anyway.
func (s *Session) forceExit(code int) {
	if !s.cfg.DryRun {
		time.Sleep(5 * time.Second)
	}
	s.exitFunc(code)
}
