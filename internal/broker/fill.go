package broker

import (
	"time"

	"tradesession/internal/domain"
	apperrors "tradesession/pkg/errors"
	"tradesession/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// processOrderLocked runs the full order-admission gate chain (kill-switch,
// idempotency, rate limit, notional cap, position cap) and then the fill
// algorithm, appending to result.
func (b *Broker) processOrderLocked(candle domain.Candle, order domain.Order, result *domain.CandleResult) {
	if b.gates != nil && b.gates.CheckKillSwitch() {
		result.Errors = append(result.Errors, apperrors.ErrKillSwitchActive.Error())
		return
	}

	if order.ClientOrderID == "" {
		result.Errors = append(result.Errors, apperrors.ErrDuplicateOrderID.Error())
		return
	}
	if cached, ok := b.processedOrderIDs.Get(order.ClientOrderID); ok {
		result.Fills = append(result.Fills, cached)
		return
	}
	if b.inFlight[order.ClientOrderID] {
		result.Errors = append(result.Errors, apperrors.ErrDuplicateOrderID.Error())
		return
	}
	b.inFlight[order.ClientOrderID] = true
	defer delete(b.inFlight, order.ClientOrderID)

	refPrice := candle.Close
	if order.EntryType == domain.EntryLimit {
		refPrice = order.Entry
	}
	if refPrice.LessThanOrEqual(decimal.Zero) {
		result.Errors = append(result.Errors, apperrors.ErrInvalidPrice.Error())
		return
	}

	order.Qty = tradingutils.QuantizeToStep(order.Qty, order.LotStep)
	if order.MinNotional.IsPositive() && order.Qty.Mul(refPrice).LessThan(order.MinNotional) {
		result.Errors = append(result.Errors, apperrors.ErrVolumeCapInsufficient.Error())
		return
	}

	if b.gates != nil {
		if err := b.gates.CheckRateLimit(time.Now()); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return
		}
		if err := b.gates.CheckNotionalCap(order.Qty, refPrice); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return
		}
	}

	combinedQty := order.Qty
	if b.pos != nil {
		combinedQty = combinedQty.Add(b.pos.Qty)
	}
	if b.gates != nil {
		if err := b.gates.CheckPositionCap(b.config.Symbol, combinedQty); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return
		}
	}

	if b.pos != nil && b.pos.Side != order.Side {
		result.Errors = append(result.Errors, "position already open on opposite side")
		return
	}

	if order.EntryType == domain.EntryLimit {
		b.fillLimitOrderLocked(candle, order, result)
		return
	}
	b.fillMarketOrderLocked(candle, order, result)
}

func (b *Broker) fillMarketOrderLocked(candle domain.Candle, order domain.Order, result *domain.CandleResult) {
	allowedQty := candle.Volume.Mul(b.config.VolumeCapRatio)
	fillQty := order.Qty
	partial := false
	if fillQty.GreaterThan(allowedQty) {
		fillQty = allowedQty
		partial = true
	}
	if fillQty.LessThanOrEqual(decimal.Zero) {
		result.Errors = append(result.Errors, apperrors.ErrVolumeCapInsufficient.Error())
		b.enqueueWorkingOrderLocked(order, order.Qty)
		return
	}

	slipped := b.applyEntrySlippageLocked(order.Side, candle.Close)
	fees := fillQty.Mul(slipped).Mul(b.config.TakerFeeBps).Div(decimal.NewFromInt(10000))

	fill := b.applyFillLocked(order.ClientOrderID, order.Side, order.SL, order.TP, fillQty, slipped, fees, partial, candle.Ts)
	result.Fills = append(result.Fills, fill)

	if partial {
		if remainder := order.Qty.Sub(fillQty); remainder.IsPositive() {
			b.enqueueWorkingOrderLocked(order, remainder)
		}
	}
}

func (b *Broker) fillLimitOrderLocked(candle domain.Candle, order domain.Order, result *domain.CandleResult) {
	if order.Entry.LessThan(candle.Low) || order.Entry.GreaterThan(candle.High) {
		b.enqueueWorkingOrderLocked(order, order.Qty)
		return
	}
	slipped := b.applyEntrySlippageLocked(order.Side, order.Entry)
	fees := order.Qty.Mul(slipped).Mul(b.config.MakerFeeBps).Div(decimal.NewFromInt(10000))
	fill := b.applyFillLocked(order.ClientOrderID, order.Side, order.SL, order.TP, order.Qty, slipped, fees, false, candle.Ts)
	result.Fills = append(result.Fills, fill)
}

// fillWorkingOrdersLocked retries the head-of-line working-order queue
// against the latest candle. Orders already past the gates when first
// submitted are not re-gated here, except the kill-switch, which blocks the
// whole queue from progressing while active.
func (b *Broker) fillWorkingOrdersLocked(candle domain.Candle, result *domain.CandleResult) {
	if len(b.workingOrders) == 0 {
		return
	}
	if b.gates != nil && b.gates.CheckKillSwitch() {
		return
	}

	remaining := make([]domain.WorkingOrder, 0, len(b.workingOrders))
	for _, wo := range b.workingOrders {
		if b.pos != nil && b.pos.Side != wo.Side {
			remaining = append(remaining, wo)
			continue
		}

		switch wo.EntryType {
		case domain.EntryLimit:
			if wo.Entry.LessThan(candle.Low) || wo.Entry.GreaterThan(candle.High) {
				remaining = append(remaining, wo)
				continue
			}
			slipped := b.applyEntrySlippageLocked(wo.Side, wo.Entry)
			fees := wo.Qty.Mul(slipped).Mul(b.config.MakerFeeBps).Div(decimal.NewFromInt(10000))
			fill := b.applyFillLocked(wo.ClientOrderID, wo.Side, wo.SL, wo.TP, wo.Qty, slipped, fees, false, candle.Ts)
			result.Fills = append(result.Fills, fill)

		default:
			allowedQty := candle.Volume.Mul(b.config.VolumeCapRatio)
			fillQty := wo.Qty
			partial := false
			if fillQty.GreaterThan(allowedQty) {
				fillQty = allowedQty
				partial = true
			}
			if fillQty.LessThanOrEqual(decimal.Zero) {
				remaining = append(remaining, wo)
				continue
			}
			slipped := b.applyEntrySlippageLocked(wo.Side, candle.Close)
			fees := fillQty.Mul(slipped).Mul(b.config.TakerFeeBps).Div(decimal.NewFromInt(10000))
			fill := b.applyFillLocked(wo.ClientOrderID, wo.Side, wo.SL, wo.TP, fillQty, slipped, fees, partial, candle.Ts)
			result.Fills = append(result.Fills, fill)

			if partial {
				if remainderQty := wo.Qty.Sub(fillQty); remainderQty.IsPositive() {
					next := wo
					next.Qty = remainderQty
					remaining = append(remaining, next)
				}
			}
		}
	}
	b.workingOrders = remaining
}

func (b *Broker) enqueueWorkingOrderLocked(order domain.Order, qty decimal.Decimal) {
	b.workingOrders = append(b.workingOrders, domain.WorkingOrder{
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		EntryType:     order.EntryType,
		Entry:         order.Entry,
		SL:            order.SL,
		TP:            order.TP,
		Qty:           qty,
		CreatedAt:     time.Now().UTC(),
	})
}

// applyFillLocked opens or averages into the position (FIFO lot
// accounting), records the idempotency cache entry, bounded order history,
// the Fill event, and persists state.
func (b *Broker) applyFillLocked(clientOrderID string, side domain.Side, sl, tp, qty, price, fees decimal.Decimal, partial bool, ts time.Time) domain.Fill {
	if b.pos == nil {
		b.pos = &domain.Position{
			Side:      side,
			SL:        sl,
			InitialSL: sl,
			TP:        tp,
			OpenedAt:  ts,
		}
	}

	b.pos.Lots = append(b.pos.Lots, domain.Lot{Qty: qty, Price: price, Fees: fees})

	var totalQty, weightedSum, totalFees decimal.Decimal
	for _, l := range b.pos.Lots {
		totalQty = totalQty.Add(l.Qty)
		weightedSum = weightedSum.Add(l.Qty.Mul(l.Price))
		totalFees = totalFees.Add(l.Fees)
	}
	b.pos.Qty = totalQty
	if !totalQty.IsZero() {
		b.pos.Entry = weightedSum.Div(totalQty)
	}
	b.pos.EntryFees = totalFees

	fill := domain.Fill{
		ClientOrderID: clientOrderID,
		Side:          side,
		Price:         price,
		Qty:           qty,
		Fees:          fees,
		Partial:       partial,
	}

	b.processedOrderIDs.Add(clientOrderID, fill)
	b.recordOrderHistoryLocked(clientOrderID, side, price, qty, ts)
	b.appendEventLocked(domain.EventFill, map[string]interface{}{
		"client_order_id": clientOrderID,
		"side":            string(side),
		"price":           price.String(),
		"qty":             qty.String(),
		"partial":         partial,
	})
	b.persistLocked()

	return fill
}

func (b *Broker) recordOrderHistoryLocked(clientOrderID string, side domain.Side, price, qty decimal.Decimal, ts time.Time) {
	b.orderHistory = append(b.orderHistory, domain.OrderHistoryEntry{
		ClientOrderID: clientOrderID,
		Side:          side,
		Price:         price,
		Qty:           qty,
		Ts:            ts,
	})
	if len(b.orderHistory) > orderHistoryCap {
		b.orderHistory = b.orderHistory[len(b.orderHistory)-orderHistoryCap:]
	}
}
