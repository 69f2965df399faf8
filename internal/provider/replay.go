package provider

import (
	"context"
	"sync"

	"tradesession/internal/domain"
)

// ReplayProvider is a deterministic, in-memory domain.Provider that yields a
// fixed sequence of events, used by backtests and tests. Live-mode-only
// methods return harmless zero values; nothing in paper/backtest mode calls
// them.
type ReplayProvider struct {
	mu sync.Mutex

	events  []domain.MarketEvent
	history []domain.Candle
	funding float64

	instrument domain.InstrumentInfo
}

// NewReplayProvider constructs a ReplayProvider. history seeds
// Provider.History; events is the sequence Listen replays in order.
func NewReplayProvider(history []domain.Candle, events []domain.MarketEvent) *ReplayProvider {
	return &ReplayProvider{
		history: history,
		events:  events,
	}
}

// SetFundingRate configures the constant rate FundingRate returns.
func (r *ReplayProvider) SetFundingRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funding = rate
}

// SetInstrumentInfo configures the value FetchInstrumentInfo returns.
func (r *ReplayProvider) SetInstrumentInfo(info domain.InstrumentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instrument = info
}

// Listen replays the configured event sequence in order, then closes the
// channel. It stops early if ctx is cancelled.
func (r *ReplayProvider) Listen(ctx context.Context) (<-chan domain.MarketEvent, <-chan error) {
	out := make(chan domain.MarketEvent)
	errs := make(chan error, 1)

	r.mu.Lock()
	events := append([]domain.MarketEvent(nil), r.events...)
	r.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errs)
		for _, e := range events {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// History returns up to n of the most recent configured candles.
func (r *ReplayProvider) History(ctx context.Context, n int) ([]domain.Candle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n >= len(r.history) {
		return append([]domain.Candle(nil), r.history...), nil
	}
	start := len(r.history) - n
	return append([]domain.Candle(nil), r.history[start:]...), nil
}

// FundingRate returns the configured constant funding rate.
func (r *ReplayProvider) FundingRate(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.funding, nil
}

// FetchInstrumentInfo returns the configured instrument info.
func (r *ReplayProvider) FetchInstrumentInfo(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instrument, nil
}

// PlaceOrder is a no-op: ReplayProvider is never used in live mode.
func (r *ReplayProvider) PlaceOrder(ctx context.Context, o domain.Order) error { return nil }

// CancelAllOrders is a no-op: ReplayProvider is never used in live mode.
func (r *ReplayProvider) CancelAllOrders(ctx context.Context) error { return nil }

// GetOpenOrders always reports no resting orders.
func (r *ReplayProvider) GetOpenOrders(ctx context.Context) ([]domain.WorkingOrder, error) {
	return nil, nil
}

// GetPendingPositions always reports no exchange-side positions.
func (r *ReplayProvider) GetPendingPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

var _ domain.Provider = (*ReplayProvider)(nil)
var _ domain.Provider = (*BinanceProvider)(nil)

// CandleEvent is a convenience constructor for building a ReplayProvider
// event sequence from candles.
func CandleEvent(c domain.Candle) domain.MarketEvent {
	return domain.MarketEvent{Candle: &c}
}

// TickEvent is a convenience constructor for building a ReplayProvider event
// sequence from ticks.
func TickEvent(t domain.Tick) domain.MarketEvent {
	return domain.MarketEvent{Tick: &t}
}
