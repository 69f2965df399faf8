// Package broker implements the paper trading broker: the canonical
// position state machine, lot book, SL/TP/trailing-stop engine, fee/slip
// model, and atomic state persistence that the session runtime drives.
package broker

import (
	"sync"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/eventlog"
	"tradesession/internal/risk"
	"tradesession/internal/safety"
	"tradesession/internal/state"
	apperrors "tradesession/pkg/errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

const (
	processedOrderCacheSize = 5000
	orderHistoryCap         = 1000
)

// Config parameterizes the paper broker's fee/slip/risk model. Zero-value
// fee and slippage decimals mean no fee and no slippage; a zero
// VolumeCapRatio lets no market order fill at all.
type Config struct {
	Symbol          string
	IsInverse       bool
	TakerFeeBps     decimal.Decimal
	MakerFeeBps     decimal.Decimal
	SlippageBps     decimal.Decimal
	VolumeCapRatio  decimal.Decimal // fraction of candle volume a market order may absorb per bar; spec default 0.10
	TrailActivateR  decimal.Decimal // fraction of R that activates the trailing stop; spec default 0.5
	TrailATRMult    decimal.Decimal // trail distance multiplier against |entry-initial_sl|; spec default 1.5
}

// DefaultConfig returns the spec's literal defaults for a symbol.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:         symbol,
		VolumeCapRatio: decimal.NewFromFloat(0.10),
		TrailActivateR: decimal.NewFromFloat(0.5),
		TrailATRMult:   decimal.NewFromFloat(1.5),
	}
}

// Broker is the paper broker: single position, FIFO lot book, a
// working-order queue for unfilled remainders, and the safety gates it must
// pass every order through. All mutating methods serialize on mu; this is
// the "shared resource" referenced throughout the session design — no
// caller is handed a pointer into pos or lots.
type Broker struct {
	mu     sync.Mutex
	config Config
	logger domain.Logger

	gates     *safety.Gates
	tradingCB *risk.TradingCircuitBreaker
	stateMgr  *state.Manager
	events    *eventlog.Log

	startingEquity decimal.Decimal
	currentEquity  decimal.Decimal
	realizedPnL    decimal.Decimal

	pos           *domain.Position
	workingOrders []domain.WorkingOrder
	orderHistory  []domain.OrderHistoryEntry

	processedOrderIDs *lru.Cache[string, domain.Fill]
	inFlight          map[string]bool
}

// New constructs a Broker. stateMgr and events may be nil for pure
// in-memory use (e.g. unit tests); SaveState and event appends become
// no-ops in that case.
func New(config Config, startingEquity decimal.Decimal, gates *safety.Gates, tradingCB *risk.TradingCircuitBreaker, stateMgr *state.Manager, events *eventlog.Log, logger domain.Logger) *Broker {
	cache, _ := lru.New[string, domain.Fill](processedOrderCacheSize)
	b := &Broker{
		config:            config,
		logger:            logger,
		gates:             gates,
		tradingCB:         tradingCB,
		stateMgr:          stateMgr,
		events:            events,
		startingEquity:    startingEquity,
		currentEquity:     startingEquity,
		processedOrderIDs: cache,
		inFlight:          make(map[string]bool),
	}
	if tradingCB != nil {
		tradingCB.SetStartingEquity(startingEquity)
	}
	return b
}

// OnCandle is the primary loop entry point: it first works the pending
// WorkingOrder queue and evaluates SL/TP/trail exits against this candle,
// then (if order is non-nil and order.Go) runs the fill algorithm for the
// new order.
func (b *Broker) OnCandle(candle domain.Candle, order *domain.Order) domain.CandleResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := domain.CandleResult{}

	b.fillWorkingOrdersLocked(candle, &result)

	if exit := b.evaluateExitLocked(candle.Close, candle.High, candle.Low); exit != nil {
		result.Exits = append(result.Exits, *exit)
	}

	if order != nil && order.Go {
		b.processOrderLocked(candle, *order, &result)
	}

	return result
}

// OnTick evaluates SL/TP/trail against an intra-candle last price. No fills
// happen here; only exits.
func (b *Broker) OnTick(tick domain.Tick) domain.TickResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := domain.TickResult{}
	if !tick.Valid() {
		result.Errors = append(result.Errors, apperrors.ErrInvalidPrice.Error())
		return result
	}
	if exit := b.evaluateExitLocked(tick.Last, tick.Last, tick.Last); exit != nil {
		result.Exits = append(result.Exits, *exit)
	}
	return result
}

// GetUnrealizedPnL reports the mark-to-market PnL of the open position at
// price, or zero if flat.
func (b *Broker) GetUnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return decimal.Zero
	}
	return b.unrealizedPnLLocked(price)
}

func (b *Broker) unrealizedPnLLocked(price decimal.Decimal) decimal.Decimal {
	pos := b.pos
	if b.config.IsInverse {
		notional := pos.Qty.Mul(pos.Entry)
		inv := decimal.NewFromInt(1).Div(pos.Entry).Sub(decimal.NewFromInt(1).Div(price))
		pnl := notional.Mul(inv)
		if pos.Side == domain.Short {
			pnl = pnl.Neg()
		}
		return pnl
	}
	diff := price.Sub(pos.Entry)
	if pos.Side == domain.Short {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Qty)
}

// Position returns a defensive copy of the open position, or nil if flat.
func (b *Broker) Position() *domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyPosition(b.pos)
}

func copyPosition(pos *domain.Position) *domain.Position {
	if pos == nil {
		return nil
	}
	cp := *pos
	cp.Lots = append([]domain.Lot(nil), pos.Lots...)
	return &cp
}

// WorkingOrders returns a defensive copy of the pending order queue.
func (b *Broker) WorkingOrders() []domain.WorkingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.WorkingOrder(nil), b.workingOrders...)
}

// CurrentEquity reports the broker's current equity mark.
func (b *Broker) CurrentEquity() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentEquity
}

// CloseAll force-closes any open position at price with reason
// FORCE_CLOSE, used during kill-switch and shutdown drains.
func (b *Broker) CloseAll(price decimal.Decimal) []domain.Exit {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return nil
	}
	exit := b.closePositionLocked(price, domain.ExitForceClose)
	return []domain.Exit{exit}
}

// CancelAllWorkingOrders clears the working-order queue, returning what was
// cancelled (used by the shutdown drain and the kill-switch task).
func (b *Broker) CancelAllWorkingOrders() []domain.WorkingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	cancelled := b.workingOrders
	b.workingOrders = nil
	return cancelled
}

// EnqueueWorkingOrder appends a working order directly, used by the
// shutdown drain to preserve execution_queue contents that never reached
// the broker before shutdown (Testable Property 8).
func (b *Broker) EnqueueWorkingOrder(wo domain.WorkingOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workingOrders = append(b.workingOrders, wo)
}

// ApplyFunding charges rate*notional against the open position's realized
// PnL and current equity. A nil position is a no-op.
func (b *Broker) ApplyFunding(rate decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil || rate.IsZero() {
		return
	}
	notional := b.pos.Qty.Mul(b.pos.Entry)
	charge := rate.Mul(notional)
	if b.pos.Side == domain.Short {
		charge = charge.Neg()
	}
	b.realizedPnL = b.realizedPnL.Sub(charge)
	b.currentEquity = b.currentEquity.Sub(charge)
	b.appendEventLocked(domain.EventFunding, map[string]interface{}{
		"symbol": b.config.Symbol,
		"rate":   rate.String(),
		"charge": charge.String(),
	})
}

func (b *Broker) appendEventLocked(name domain.EventName, payload map[string]interface{}) {
	if b.events == nil {
		return
	}
	if _, err := b.events.Append(domain.Event{Name: name, Timestamp: time.Now().UTC(), Payload: payload}); err != nil && b.logger != nil {
		b.logger.Warn("failed to append event", "event", string(name), "error", err.Error())
	}
}
