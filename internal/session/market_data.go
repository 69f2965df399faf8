package session

import (
	"context"
	"time"

	"tradesession/internal/domain"
	"tradesession/pkg/tradingutils"

	"github.com/google/uuid"
)

// runMarketData is market_data_task (spec.md §4.6): it is the sole writer
// of latestTick and lastDataTs (spec.md §5 "shared-resource policy"), and
// the only consumer of the provider's event stream, so ticks and candles
// are serialized in the provider's own yield order.
func (s *Session) runMarketData(ctx context.Context) error {
	events, errs := s.provider.Listen(ctx)

	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleMarketEvent(ctx, ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				s.logger.Warn("provider stream error", "error", err.Error())
			}
		}
	}
	return nil
}

func (s *Session) handleMarketEvent(ctx context.Context, ev domain.MarketEvent) {
	switch {
	case ev.Tick != nil:
		s.handleTick(*ev.Tick)
	case ev.Candle != nil:
		s.handleCandle(ctx, *ev.Candle)
	}
}

// handleTick discards ticks with Last <= 0 before they ever reach the
// broker or strategy (spec.md §3, Testable Property 7).
func (s *Session) handleTick(tick domain.Tick) {
	if !tick.Valid() {
		return
	}
	s.latestTick.Store(&tick)
	s.lastDataTs.Store(time.Now().UnixNano())
}

func (s *Session) handleCandle(ctx context.Context, candle domain.Candle) {
	s.candlesMu.Lock()
	s.candles = append(s.candles, candle)
	if over := len(s.candles) - s.cfg.MaxCandleBuffer; over > 0 {
		s.candles = s.candles[over:]
	}
	snapshot := append([]domain.Candle(nil), s.candles...)
	s.candlesMu.Unlock()

	s.lastDataTs.Store(time.Now().UnixNano())

	pos := s.broker.Position()
	order, err := s.strategy.OnCandle(ctx, snapshot, pos)
	if err != nil {
		s.logger.Warn("strategy callback failed", "error", err.Error())
		return
	}
	if order == nil || !order.Go {
		return
	}

	s.quantizeOrder(order)

	// The strategy collaborator is external to the core (spec.md §4.2); a
	// stub that omits ClientOrderID would otherwise violate the mandatory
	// idempotency key (spec.md §3), so the session stamps one here.
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	correlationID := uuid.NewString()
	item := executionItem{order: *order, candle: candle, latencyMS: s.cfg.ExecutionLatencyMS, enqueuedAt: time.Now().UTC(), correlationID: correlationID}
	s.logger.Debug("order enqueued", "correlation_id", correlationID, "client_order_id", order.ClientOrderID)
	select {
	case s.executionQueue <- item:
	case <-ctx.Done():
	}
}

// quantizeOrder snaps the order's entry/stop/target prices and quantity to
// the exchange's tick/lot size, and stamps LotStep/MinNotional so the
// broker's own gate-chain quantization (internal/broker/fill.go) is a
// no-op repeat of the same rounding rather than a surprise truncation.
func (s *Session) quantizeOrder(order *domain.Order) {
	info := s.instrument.Load()
	if info == nil {
		return
	}
	if info.TickSize.IsPositive() {
		order.Entry = tradingutils.QuantizeToStep(order.Entry, info.TickSize)
		order.SL = tradingutils.QuantizeToStep(order.SL, info.TickSize)
		order.TP = tradingutils.QuantizeToStep(order.TP, info.TickSize)
	}
	if info.LotSize.IsPositive() {
		order.Qty = tradingutils.QuantizeToStep(order.Qty, info.LotSize)
		order.LotStep = info.LotSize
	}
	order.MinNotional = info.MinNotional
}
