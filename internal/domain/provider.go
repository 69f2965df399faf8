package domain

import "context"

// MarketEvent is one item yielded by Provider.Listen: exactly one of Candle
// or Tick is non-nil.
type MarketEvent struct {
	Candle *Candle
	Tick   *Tick
}

// Provider is the external collaborator the session runtime consumes to get
// market data and, in live mode, to act on the exchange. The core never
// implements this interface itself — signal/strategy computation and
// exchange connectivity are out of scope; only the contract lives here.
type Provider interface {
	// Listen yields an unbounded, ordered sequence of candles and ticks on
	// the returned channel until ctx is cancelled or the provider gives up,
	// in which case it closes the channel and err (if non-nil) explains why.
	Listen(ctx context.Context) (<-chan MarketEvent, <-chan error)

	// History returns up to n recent candles to seed the strategy's warm-up
	// window. May fail; callers retry with backoff.
	History(ctx context.Context, n int) ([]Candle, error)

	// FundingRate returns the current funding rate, or zero if the provider
	// doesn't support one.
	FundingRate(ctx context.Context) (float64, error)

	// FetchInstrumentInfo returns exchange precision/size limits for symbol.
	FetchInstrumentInfo(ctx context.Context, symbol string) (InstrumentInfo, error)

	// PlaceOrder submits a live order. Live-mode only; paper sessions never
	// call it.
	PlaceOrder(ctx context.Context, o Order) error

	// CancelAllOrders cancels every resting order on the exchange. Live-mode
	// only.
	CancelAllOrders(ctx context.Context) error

	// GetOpenOrders lists resting orders. Live-mode only.
	GetOpenOrders(ctx context.Context) ([]WorkingOrder, error)

	// GetPendingPositions lists exchange-reported open positions. Live-mode
	// only, used for startup reconciliation.
	GetPendingPositions(ctx context.Context) ([]Position, error)
}
