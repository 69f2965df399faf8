package session

import (
	"context"
	"testing"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/provider"
)

// openPosition fills a market order so ApplyFunding (which is a no-op
// while flat) has exposure to charge against.
func openPosition(t *testing.T, s *Session) {
	t.Helper()
	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(1), SL: dec(40000), TP: dec(60000), ClientOrderID: "funding-seed",
	}
	result := s.broker.OnCandle(baseCandle(50000), order)
	if len(result.Fills) != 1 {
		t.Fatalf("expected the seed order to fill, got fills=%d errors=%v", len(result.Fills), result.Errors)
	}
}

func TestMaybeApplyFunding_AppliesOnlyAtFundingHourMinuteZero(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	prov := provider.NewReplayProvider(nil, nil)
	prov.SetFundingRate(0.0001)
	s := newTestSession(t, cfg, prov)
	openPosition(t, s)

	startEquity := s.broker.CurrentEquity()

	// 08:00:00 UTC is a funding boundary.
	fundingTime := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.maybeApplyFunding(context.Background(), fundingTime)

	if s.broker.CurrentEquity().Equal(startEquity) {
		t.Fatal("expected funding to change equity at a funding-hour minute-zero boundary")
	}
}

func TestMaybeApplyFunding_SkipsNonBoundaryMinutes(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	prov := provider.NewReplayProvider(nil, nil)
	prov.SetFundingRate(0.0001)
	s := newTestSession(t, cfg, prov)
	openPosition(t, s)

	startEquity := s.broker.CurrentEquity()

	nonBoundary := time.Date(2026, 1, 1, 8, 30, 0, 0, time.UTC)
	s.maybeApplyFunding(context.Background(), nonBoundary)

	if !s.broker.CurrentEquity().Equal(startEquity) {
		t.Fatal("funding must not apply off the UTC hour boundary")
	}
}

func TestMaybeApplyFunding_DoesNotDoubleApplyWithinSameHour(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	prov := provider.NewReplayProvider(nil, nil)
	prov.SetFundingRate(0.0001)
	s := newTestSession(t, cfg, prov)
	openPosition(t, s)

	fundingTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.maybeApplyFunding(context.Background(), fundingTime)
	afterFirst := s.broker.CurrentEquity()

	s.maybeApplyFunding(context.Background(), fundingTime)
	if !s.broker.CurrentEquity().Equal(afterFirst) {
		t.Fatal("funding must not be re-applied for the same hour key")
	}
}
