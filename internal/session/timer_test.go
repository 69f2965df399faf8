package session

import (
	"context"
	"testing"
	"time"
)

func TestRunTimer_RequestsShutdownAtDeadline(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	cfg.DurationMin = 1
	s := newTestSession(t, cfg, nil)
	s.startedAt = time.Now().Add(-time.Minute).Add(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.runTimer(ctx); err != nil {
		t.Fatalf("runTimer returned an error: %v", err)
	}
	if s.shutdown.Reason() != ReasonDurationLimit {
		t.Fatalf("expected ReasonDurationLimit, got %q", s.shutdown.Reason())
	}
}

func TestRunTimer_ReturnsImmediatelyOnContextCancel(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	cfg.DurationMin = 60
	s := newTestSession(t, cfg, nil)
	s.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.runTimer(ctx); err != nil {
		t.Fatalf("runTimer returned an error: %v", err)
	}
	if s.shutdown.Requested() {
		t.Fatal("cancellation should not itself request shutdown")
	}
}
