package session

import (
	"testing"
	"time"

	"tradesession/internal/domain"
)

func TestDrainExecutionQueue_MovesPendingOrdersToWorkingOrders(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	s := newTestSession(t, cfg, nil)

	s.executionQueue <- executionItem{
		order:      domain.Order{ClientOrderID: "pending-1", Side: domain.Long, EntryType: domain.EntryLimit, Entry: dec(49000), Qty: dec(0.01)},
		candle:     baseCandle(50000),
		enqueuedAt: time.Now().UTC(),
	}

	drained := s.drainExecutionQueue()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained order, got %d", len(drained))
	}

	working := s.broker.WorkingOrders()
	if len(working) != 1 || working[0].ClientOrderID != "pending-1" {
		t.Fatalf("expected the drained order to land in broker working orders, got %+v", working)
	}
}

func TestDrainExecutionQueue_EmptyQueueIsANoop(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	s := newTestSession(t, cfg, nil)

	drained := s.drainExecutionQueue()
	if len(drained) != 0 {
		t.Fatalf("expected no drained orders from an empty queue, got %d", len(drained))
	}
}

func TestExitPrice_FallsBackToLastCandleWhenNoTick(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	s := newTestSession(t, cfg, nil)

	s.candles = append(s.candles, baseCandle(123.45))
	price := s.exitPrice()
	if !price.Equal(dec(123.45)) {
		t.Fatalf("expected exit price to fall back to last candle close, got %s", price)
	}
}

func TestExitPrice_PrefersLatestValidTick(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	s := newTestSession(t, cfg, nil)

	s.candles = append(s.candles, baseCandle(100))
	s.latestTick.Store(&domain.Tick{Last: dec(200)})

	price := s.exitPrice()
	if !price.Equal(dec(200)) {
		t.Fatalf("expected exit price to prefer the latest valid tick, got %s", price)
	}
}

func TestDrain_EmitsSessionStoppedAndReportsManualStopByDefault(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	s := newTestSession(t, cfg, nil)
	if err := s.events.Open(); err != nil {
		t.Fatalf("failed to open event log: %v", err)
	}
	defer s.events.Close()

	report := s.drain()
	if report.Reason != ReasonManualStop {
		t.Fatalf("expected ReasonManualStop when shutdown was never requested, got %q", report.Reason)
	}
}
