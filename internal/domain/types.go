package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position or order.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
	Flat  Side = "FLAT"
)

// EntryType is how an order should be worked against the book.
type EntryType string

const (
	EntryMarket EntryType = "market"
	EntryLimit  EntryType = "limit"
)

// ExitReason tags why a position was closed.
type ExitReason string

const (
	ExitSL         ExitReason = "SL"
	ExitTP         ExitReason = "TP"
	ExitTrail      ExitReason = "TRAIL"
	ExitEOD        ExitReason = "EOD"
	ExitForceClose ExitReason = "FORCE_CLOSE"
)

// Candle is one OHLCV bar for the session's configured interval. Immutable
// once constructed; the broker and strategy only ever read it.
type Candle struct {
	Ts     time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Tick is a best bid/ask/last snapshot. A Tick with Last <= 0 is invalid and
// must be discarded by the ingestion path before it reaches the broker or
// strategy.
type Tick struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
	Ts     time.Time
}

// Valid reports whether the tick carries a usable last price.
func (t Tick) Valid() bool {
	return t.Last.IsPositive()
}

// Setup carries strategy-identifying metadata along with an order; the core
// only threads it through to events, it never interprets the contents.
type Setup struct {
	Name   string
	Detail map[string]interface{}
}

// Order is the signal pipeline's request to open or add to a position. Go
// reports whether the strategy actually wants an order placed this bar;
// ClientOrderID is mandatory and is the sole idempotency key.
type Order struct {
	Go            bool
	Side          Side
	EntryType     EntryType
	Entry         decimal.Decimal
	SL            decimal.Decimal
	TP            decimal.Decimal
	Qty           decimal.Decimal
	ClientOrderID string
	Equity        decimal.Decimal
	RiskPct       decimal.Decimal
	RRMin         decimal.Decimal
	LotStep       decimal.Decimal
	MinNotional   decimal.Decimal
	Setup         Setup
}

// Lot is a single fill contributing to the open position, retained for FIFO
// cost-basis accounting.
type Lot struct {
	Qty   decimal.Decimal
	Price decimal.Decimal
	Fees  decimal.Decimal
}

// Position is the broker's sole open exposure. At most one exists per broker
// instance; qty must equal the sum of lot quantities within tolerance.
type Position struct {
	Side        Side
	Entry       decimal.Decimal
	Qty         decimal.Decimal
	SL          decimal.Decimal
	InitialSL   decimal.Decimal
	TP          decimal.Decimal
	OpenedAt    time.Time
	EntryFees   decimal.Decimal
	BarsOpen    int
	TrailActive bool
	TrailStop   decimal.Decimal
	Lots        []Lot
}

// WorkingOrder is the unfilled remainder of a submitted order, tagged with
// the originating client order id so a later partial fill still resolves
// back to the same idempotency record.
type WorkingOrder struct {
	ClientOrderID string
	Side          Side
	EntryType     EntryType
	Entry         decimal.Decimal
	SL            decimal.Decimal
	TP            decimal.Decimal
	Qty           decimal.Decimal
	CreatedAt     time.Time
}

// Fill describes one accepted (possibly partial) order execution.
type Fill struct {
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	Fees          decimal.Decimal
	Partial       bool
}

// Exit describes one position close.
type Exit struct {
	Reason       ExitReason
	Price        decimal.Decimal
	Qty          decimal.Decimal
	RealizedPnL  decimal.Decimal
	EntryFees    decimal.Decimal
	ExitFees     decimal.Decimal
	ClosedAt     time.Time
}

// CandleResult is returned by Broker.OnCandle.
type CandleResult struct {
	Fills  []Fill
	Exits  []Exit
	Errors []string
}

// TickResult is returned by Broker.OnTick.
type TickResult struct {
	Exits  []Exit
	Errors []string
}

// CircuitBreakerSnapshot is the persisted shape of the error breaker's state,
// embedded in SessionState.
type CircuitBreakerSnapshot struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure_ts"`
}

// SessionState is the full persisted shape written by StateManager at every
// checkpoint and on shutdown, and read back at startup to recover from a
// crash.
type SessionState struct {
	StartingEquity    decimal.Decimal        `json:"starting_equity"`
	CurrentEquity     decimal.Decimal        `json:"current_equity"`
	RealizedPnL       decimal.Decimal        `json:"realized_pnl"`
	Pos               *Position              `json:"pos"`
	WorkingOrders     []WorkingOrder         `json:"working_orders"`
	ProcessedOrderIDs []string               `json:"processed_order_ids"`
	OrderHistory      []OrderHistoryEntry    `json:"order_history"`
	CircuitBreaker    CircuitBreakerSnapshot `json:"circuit_breaker"`
}

// OrderHistoryEntry is one bounded audit record of an accepted order.
type OrderHistoryEntry struct {
	ClientOrderID string          `json:"client_order_id"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Qty           decimal.Decimal `json:"qty"`
	Ts            time.Time       `json:"ts"`
}

// InstrumentInfo describes exchange-imposed precision and size limits for a
// symbol, returned by Provider.FetchInstrumentInfo.
type InstrumentInfo struct {
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
}
