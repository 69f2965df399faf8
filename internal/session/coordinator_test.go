package session

import (
	"context"
	"os"
	"testing"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/provider"
)

func fastTestConfig(t *testing.T, symbol string) Config {
	t.Helper()
	cfg := testConfig(t, symbol)
	cfg.DurationMin = 60
	cfg.StaleTimeout = time.Hour
	cfg.HeartbeatInterval = 5 * time.Millisecond
	cfg.WatchdogTickInterval = 5 * time.Millisecond
	cfg.CheckpointInterval = time.Hour
	cfg.KillSwitchInterval = 5 * time.Millisecond
	cfg.StaleCheckInterval = 5 * time.Millisecond
	cfg.HardwareWatchdogInterval = 5 * time.Millisecond
	cfg.HardwareWatchdogMaxAge = time.Hour
	cfg.MaxMemoryMB = 0
	return cfg
}

// TestSession_Run_ManualStop exercises the full cooperative-task lifecycle
// end to end: startup, the task set running concurrently, an external
// Stop() call, and an orderly drain to a final Report.
func TestSession_Run_ManualStop(t *testing.T) {
	cfg := fastTestConfig(t, "BTCUSDT")
	prov := provider.NewReplayProvider(nil, nil)
	s := New(cfg, prov, NullStrategy{}, testLogger{})

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.Stop()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
	if report.Reason != ReasonManualStop {
		t.Fatalf("expected ReasonManualStop, got %q", report.Reason)
	}
	if report.KillSwitchHit {
		t.Fatal("manual stop must not flag killHit")
	}
}

// TestSession_Run_KillSwitch covers scenario S5: a kill-switch activation
// mid-session must end the run with ReasonKillSwitch and KillSwitchHit set,
// the signal the CLI wrapper maps to exit code 99.
func TestSession_Run_KillSwitch(t *testing.T) {
	cfg := fastTestConfig(t, "BTCUSDT")
	prov := provider.NewReplayProvider(nil, nil)
	s := New(cfg, prov, NullStrategy{}, testLogger{})

	os.Setenv("LA_KILL_SWITCH", "TRUE")
	defer os.Unsetenv("LA_KILL_SWITCH")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
	if report.Reason != ReasonKillSwitch {
		t.Fatalf("expected ReasonKillSwitch, got %q", report.Reason)
	}
	if !report.KillSwitchHit {
		t.Fatal("expected KillSwitchHit to be set")
	}
	if exitCodeForTest(report) != 99 {
		t.Fatalf("expected exit code 99 for a kill-switch report, got %d", exitCodeForTest(report))
	}
}

// exitCodeForTest mirrors cmd/tradesession's exit-code mapping (spec.md
// §6) without importing package main.
func exitCodeForTest(report Report) int {
	switch {
	case report.KillSwitchHit:
		return 99
	case report.Reason == ReasonTaskFailed || report.Reason == ReasonErrorBudget ||
		report.Reason == ReasonWatchdogFrozen || report.Reason == ReasonMemoryLimit:
		return 1
	default:
		return 0
	}
}

// TestSession_StaleDrawdownGuard_ResetsOnFlatRestartWithTrippedDrawdown
// covers scenario S6: restarting flat with a persisted drawdown already at
// the trading breaker's trip threshold must reset the starting-equity
// baseline rather than instantly trip the breaker.
func TestSession_StaleDrawdownGuard_ResetsOnFlatRestartWithTrippedDrawdown(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	cfg.TradingCircuit.MaxDailyDrawdownPct = dec(5)
	s := newTestSession(t, cfg, nil)

	// Simulate a prior session's persisted trading-breaker baseline.
	s.tradingCB.SetStartingEquity(dec(10000))

	// Realize a loss that leaves the session flat with >=5% drawdown from
	// that baseline, as if restored from a crash right after the loss.
	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(1), SL: dec(40000), TP: dec(60000), ClientOrderID: "drawdown-seed",
	}
	if result := s.broker.OnCandle(baseCandle(50000), order); len(result.Fills) != 1 {
		t.Fatalf("expected seed order to fill, got %+v", result)
	}
	s.broker.CloseAll(dec(49000))

	if s.broker.Position() != nil {
		t.Fatal("test setup expected the session to be flat before the guard runs")
	}

	s.applyStaleDrawdownGuard()

	if !s.tradingCB.StartingEquity().Equal(s.broker.CurrentEquity()) {
		t.Fatalf("expected the guard to reset starting equity to current equity (%s), got starting=%s",
			s.broker.CurrentEquity(), s.tradingCB.StartingEquity())
	}
	if s.tradingCB.IsTripped() {
		t.Fatal("the stale drawdown guard must prevent an instant trip on a flat restart")
	}
}
