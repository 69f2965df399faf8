package broker

import (
	"path/filepath"
	"testing"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/eventlog"
	"tradesession/internal/risk"
	"tradesession/internal/safety"
	"tradesession/internal/state"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestBroker(t *testing.T, cfg Config) *Broker {
	t.Helper()
	gates := safety.NewGates(safety.GateConfig{}, nil)
	cb := risk.NewTradingCircuitBreaker(risk.TradingCircuitConfig{})
	return New(cfg, dec(10000), gates, cb, nil, nil, nil)
}

func baseCandle(close float64) domain.Candle {
	return domain.Candle{
		Ts:     time.Now().UTC(),
		Open:   dec(close),
		High:   dec(close),
		Low:    dec(close),
		Close:  dec(close),
		Volume: dec(1000),
	}
}

func TestBroker_FillOpensPosition(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	candle := baseCandle(50000)
	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(0.01), SL: dec(49000), TP: dec(52000), ClientOrderID: "order-1",
	}

	result := b.OnCandle(candle, order)
	if len(result.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d (errors: %v)", len(result.Fills), result.Errors)
	}
	pos := b.Position()
	if pos == nil {
		t.Fatal("expected an open position")
	}
	if !pos.Qty.Equal(dec(0.01)) {
		t.Errorf("expected qty 0.01, got %s", pos.Qty)
	}
}

func TestBroker_TakeProfitRoundtrip(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT") // zero fees and slippage by default
	b := newTestBroker(t, cfg)

	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(0.01), SL: dec(49000), TP: dec(52000), ClientOrderID: "tp-roundtrip",
	}
	b.OnCandle(baseCandle(50000), order)

	candle := baseCandle(51000)
	candle.High = dec(52000)
	result := b.OnCandle(candle, nil)

	if len(result.Exits) != 1 {
		t.Fatalf("expected one TP exit, got %+v", result.Exits)
	}
	exit := result.Exits[0]
	if exit.Reason != domain.ExitTP {
		t.Errorf("expected ExitTP, got %s", exit.Reason)
	}
	if !exit.Price.Equal(dec(52000)) {
		t.Errorf("expected exit at the TP price 52000, got %s", exit.Price)
	}
	// Linear PnL: (exit - entry) * qty, no fees or slip configured.
	if !exit.RealizedPnL.Equal(dec(20)) {
		t.Errorf("expected realized PnL 20, got %s", exit.RealizedPnL)
	}
	if !b.CurrentEquity().Equal(dec(10020)) {
		t.Errorf("expected equity 10020 after the roundtrip, got %s", b.CurrentEquity())
	}
	if b.Position() != nil {
		t.Error("expected the position to be destroyed on exit")
	}
}

func TestBroker_DuplicateClientOrderIDIsIdempotent(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(0.01), SL: dec(49000), TP: dec(52000), ClientOrderID: "dup-1",
	}

	r1 := b.OnCandle(baseCandle(50000), order)
	r2 := b.OnCandle(baseCandle(50100), order)

	if len(r1.Fills) != 1 || len(r2.Fills) != 1 {
		t.Fatalf("expected 1 fill each time, got %d then %d", len(r1.Fills), len(r2.Fills))
	}
	if r2.Fills[0].Price != r1.Fills[0].Price {
		t.Errorf("replayed order should return the original fill, got a different price")
	}
	pos := b.Position()
	if !pos.Qty.Equal(dec(0.01)) {
		t.Errorf("duplicate submission must not add a second lot, got qty %s", pos.Qty)
	}
}

func TestBroker_PartialFillConservesQuantity(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	candle := baseCandle(50000)
	candle.Volume = dec(1) // volume cap ratio 0.10 => allowed 0.1
	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(1), SL: dec(49000), TP: dec(52000), ClientOrderID: "big-order",
	}

	result := b.OnCandle(candle, order)
	if len(result.Fills) != 1 || !result.Fills[0].Partial {
		t.Fatalf("expected one partial fill, got %+v", result.Fills)
	}
	if !result.Fills[0].Qty.Equal(dec(0.1)) {
		t.Errorf("expected partial fill qty 0.1, got %s", result.Fills[0].Qty)
	}

	workingOrders := b.WorkingOrders()
	if len(workingOrders) != 1 {
		t.Fatalf("expected 1 working order for the remainder, got %d", len(workingOrders))
	}
	total := workingOrders[0].Qty.Add(result.Fills[0].Qty)
	if !total.Equal(dec(1)) {
		t.Errorf("filled + remaining must conserve original qty 1, got %s", total)
	}

	// Feed a second candle with enough volume to drain the remainder.
	candle2 := baseCandle(50100)
	candle2.Volume = dec(1000)
	result2 := b.OnCandle(candle2, nil)
	if len(result2.Fills) != 1 {
		t.Fatalf("expected the working order to drain on next candle, got %d fills", len(result2.Fills))
	}
	if len(b.WorkingOrders()) != 0 {
		t.Errorf("expected working order queue to be empty after drain")
	}
}

func TestBroker_KillSwitchBlocksNewOrders(t *testing.T) {
	t.Setenv("LA_KILL_SWITCH", "TRUE")
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(0.01), SL: dec(49000), TP: dec(52000), ClientOrderID: "blocked-1",
	}
	result := b.OnCandle(baseCandle(50000), order)
	if len(result.Fills) != 0 {
		t.Fatalf("expected no fills while kill switch active, got %d", len(result.Fills))
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected an error reported while kill switch active")
	}
	if b.Position() != nil {
		t.Error("expected no position to be opened while kill switch active")
	}
}

func TestBroker_StaleTickRejected(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	result := b.OnTick(domain.Tick{Symbol: "BTCUSDT", Last: dec(0)})
	if len(result.Errors) == 0 {
		t.Fatal("expected an invalid tick to be rejected with an error")
	}
	if len(result.Exits) != 0 {
		t.Error("an invalid tick must never trigger an exit")
	}
}

func TestBroker_TrailingStopActivatesAndExits(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(1), SL: dec(48000), TP: dec(60000), ClientOrderID: "trail-1",
	}
	b.OnCandle(baseCandle(50000), order)

	// R = 2000; activation at 0.5R = 1000 above entry => 51000.
	// trail distance = 1.5R = 3000.
	r1 := b.OnCandle(baseCandle(51001), nil)
	if len(r1.Exits) != 0 {
		t.Fatalf("should not have exited yet, got %+v", r1.Exits)
	}
	pos := b.Position()
	if !pos.TrailActive {
		t.Fatal("expected trail to have activated")
	}
	if !pos.TrailStop.Equal(dec(48001)) {
		t.Errorf("expected trail stop 48001, got %s", pos.TrailStop)
	}

	r2 := b.OnCandle(baseCandle(55000), nil)
	if len(r2.Exits) != 0 {
		t.Fatalf("should not have exited yet, got %+v", r2.Exits)
	}
	pos = b.Position()
	if !pos.TrailStop.Equal(dec(52000)) {
		t.Errorf("expected trail stop to ratchet to 52000, got %s", pos.TrailStop)
	}

	// Price reverses through the trail stop -> exit at TRAIL, not TP.
	candle := baseCandle(52000)
	candle.High = dec(55000)
	candle.Low = dec(51900)
	r3 := b.OnCandle(candle, nil)
	if len(r3.Exits) != 1 {
		t.Fatalf("expected a trailing-stop exit, got %+v", r3.Exits)
	}
	if r3.Exits[0].Reason != domain.ExitTrail {
		t.Errorf("expected ExitTrail, got %s", r3.Exits[0].Reason)
	}
}

func TestBroker_SLWinsOverTPInSameBar(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(1), SL: dec(49000), TP: dec(51000), ClientOrderID: "conflict-1",
	}
	b.OnCandle(baseCandle(50000), order)

	// A bar whose range touches both SL and TP.
	candle := baseCandle(50000)
	candle.High = dec(51500)
	candle.Low = dec(48500)
	result := b.OnCandle(candle, nil)

	if len(result.Exits) != 1 {
		t.Fatalf("expected exactly one exit, got %+v", result.Exits)
	}
	if result.Exits[0].Reason != domain.ExitSL {
		t.Errorf("conservative conflict policy must pick SL, got %s", result.Exits[0].Reason)
	}
}

func TestBroker_InversePnLSignFlipsForShort(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	cfg.IsInverse = true
	b := newTestBroker(t, cfg)

	order := &domain.Order{
		Go: true, Side: domain.Short, EntryType: domain.EntryMarket,
		Qty: dec(1), SL: dec(52000), TP: dec(45000), ClientOrderID: "inv-short",
	}
	b.OnCandle(baseCandle(50000), order)

	// Price drops, a profitable short: unrealized PnL must be positive.
	pnl := b.GetUnrealizedPnL(dec(45000))
	if !pnl.IsPositive() {
		t.Errorf("expected positive unrealized PnL for a profitable inverse short, got %s", pnl)
	}
}

func TestBroker_ShutdownDrainPreservesWorkingOrders(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	b := newTestBroker(t, cfg)

	wo := domain.WorkingOrder{ClientOrderID: "queued-1", Side: domain.Long, EntryType: domain.EntryLimit, Entry: dec(49000), SL: dec(48000), TP: dec(51000), Qty: dec(0.01)}
	b.EnqueueWorkingOrder(wo)

	cancelled := b.CancelAllWorkingOrders()
	if len(cancelled) != 1 || cancelled[0].ClientOrderID != "queued-1" {
		t.Fatalf("expected the queued working order to be returned intact, got %+v", cancelled)
	}
	if len(b.WorkingOrders()) != 0 {
		t.Error("expected the working order queue to be empty after drain")
	}
}

func TestBroker_PersistAndRestoreRoundtrip(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "session.json")
	mgr := state.NewManager(statePath, nil)
	events := eventlog.NewLog(dir, nil)
	if err := events.Open(); err != nil {
		t.Fatalf("events.Open: %v", err)
	}
	defer events.Close()

	cfg := DefaultConfig("BTCUSDT")
	gates := safety.NewGates(safety.GateConfig{}, nil)
	cb := risk.NewTradingCircuitBreaker(risk.TradingCircuitConfig{})
	b := New(cfg, dec(10000), gates, cb, mgr, events, nil)

	order := &domain.Order{
		Go: true, Side: domain.Long, EntryType: domain.EntryMarket,
		Qty: dec(0.01), SL: dec(49000), TP: dec(52000), ClientOrderID: "persist-1",
	}
	b.OnCandle(baseCandle(50000), order)

	if err := b.SaveState(); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	mgr2 := state.NewManager(statePath, nil)
	if err := mgr2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	b2 := New(cfg, decimal.Zero, gates, cb, mgr2, nil, nil)
	if err := b2.LoadState(); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	pos := b2.Position()
	if pos == nil {
		t.Fatal("expected restored position to be present")
	}
	if !pos.Qty.Equal(dec(0.01)) {
		t.Errorf("expected restored qty 0.01, got %s", pos.Qty)
	}
	if !b2.CurrentEquity().Equal(b.CurrentEquity()) {
		t.Errorf("expected restored equity %s to match saved equity %s", b2.CurrentEquity(), b.CurrentEquity())
	}
}
