package broker

import (
	"time"

	"tradesession/internal/domain"

	"github.com/shopspring/decimal"
)

// evaluateExitLocked checks SL/TP/trail against a price range touched since
// the last check (touchHigh/touchLow) and updates the trailing stop using
// trailPrice as the reference (candle close for OnCandle, tick.Last for
// OnTick). Conflict policy when a single bar touches both SL and TP:
// conservative — the stop check is evaluated first, so SL/TRAIL wins.
func (b *Broker) evaluateExitLocked(trailPrice, touchHigh, touchLow decimal.Decimal) *domain.Exit {
	if b.pos == nil {
		return nil
	}

	b.updateTrailLocked(trailPrice)

	stopPrice := b.pos.SL
	stopReason := domain.ExitSL
	if b.pos.TrailActive {
		stopPrice = b.pos.TrailStop
		stopReason = domain.ExitTrail
	}

	var slHit, tpHit bool
	switch b.pos.Side {
	case domain.Long:
		slHit = touchLow.LessThanOrEqual(stopPrice)
		tpHit = touchHigh.GreaterThanOrEqual(b.pos.TP)
	case domain.Short:
		slHit = touchHigh.GreaterThanOrEqual(stopPrice)
		tpHit = touchLow.LessThanOrEqual(b.pos.TP)
	}

	if slHit {
		exit := b.closePositionLocked(stopPrice, stopReason)
		return &exit
	}
	if tpHit {
		exit := b.closePositionLocked(b.pos.TP, domain.ExitTP)
		return &exit
	}
	return nil
}

// updateTrailLocked activates and advances the trailing stop. R is the
// initial risk distance |entry - initial_sl|; the trail activates once
// unrealized favorable movement reaches TrailActivateR * R, then trails at
// TrailATRMult * R behind the best price seen, moving only in the
// favorable direction.
func (b *Broker) updateTrailLocked(price decimal.Decimal) {
	pos := b.pos
	r := pos.Entry.Sub(pos.InitialSL).Abs()
	if r.IsZero() {
		return
	}
	trailDistance := r.Mul(b.config.TrailATRMult)
	activationThreshold := r.Mul(b.config.TrailActivateR)

	switch pos.Side {
	case domain.Long:
		unrealized := price.Sub(pos.Entry)
		if !pos.TrailActive {
			if unrealized.GreaterThanOrEqual(activationThreshold) {
				pos.TrailActive = true
				pos.TrailStop = price.Sub(trailDistance)
			}
			return
		}
		if candidate := price.Sub(trailDistance); candidate.GreaterThan(pos.TrailStop) {
			pos.TrailStop = candidate
		}
	case domain.Short:
		unrealized := pos.Entry.Sub(price)
		if !pos.TrailActive {
			if unrealized.GreaterThanOrEqual(activationThreshold) {
				pos.TrailActive = true
				pos.TrailStop = price.Add(trailDistance)
			}
			return
		}
		if candidate := price.Add(trailDistance); candidate.LessThan(pos.TrailStop) {
			pos.TrailStop = candidate
		}
	}
}

// closePositionLocked closes the entire open position at price (after
// adverse exit slippage), realizes PnL, updates equity, and destroys pos.
func (b *Broker) closePositionLocked(price decimal.Decimal, reason domain.ExitReason) domain.Exit {
	pos := b.pos
	slipped := b.applyExitSlippageLocked(pos.Side, price)

	exitNotional := pos.Qty.Mul(slipped)
	exitFees := exitNotional.Mul(b.config.TakerFeeBps).Div(decimal.NewFromInt(10000))

	grossPnL := b.grossPnLLocked(pos, slipped)
	realized := grossPnL.Sub(pos.EntryFees).Sub(exitFees)

	b.realizedPnL = b.realizedPnL.Add(realized)
	b.currentEquity = b.currentEquity.Add(realized)

	exit := domain.Exit{
		Reason:      reason,
		Price:       slipped,
		Qty:         pos.Qty,
		RealizedPnL: realized,
		EntryFees:   pos.EntryFees,
		ExitFees:    exitFees,
		ClosedAt:    time.Now().UTC(),
	}

	b.pos = nil

	tradePnL := realized
	if b.tradingCB != nil {
		b.tradingCB.UpdateEquity(b.currentEquity, &tradePnL)
	}

	b.appendEventLocked(domain.EventExit, map[string]interface{}{
		"symbol":       b.config.Symbol,
		"reason":       string(reason),
		"price":        slipped.String(),
		"qty":          exit.Qty.String(),
		"realized_pnl": realized.String(),
	})
	b.persistLocked()

	return exit
}

// grossPnLLocked computes PnL before fees: linear contracts use
// (exit-entry)*qty (sign-flipped for SHORT); inverse contracts use
// notional*(1/entry - 1/exit), sign-flipped for SHORT, where notional is
// qty*entry.
func (b *Broker) grossPnLLocked(pos *domain.Position, exitPrice decimal.Decimal) decimal.Decimal {
	if b.config.IsInverse {
		notional := pos.Qty.Mul(pos.Entry)
		pnl := notional.Mul(decimal.NewFromInt(1).Div(pos.Entry).Sub(decimal.NewFromInt(1).Div(exitPrice)))
		if pos.Side == domain.Short {
			pnl = pnl.Neg()
		}
		return pnl
	}
	diff := exitPrice.Sub(pos.Entry)
	if pos.Side == domain.Short {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Qty)
}

// applyExitSlippageLocked applies adverse slippage to a closing trade: a
// LONG exit sells (adverse = lower price), a SHORT exit buys back (adverse
// = higher price) — the mirror image of entry slippage.
func (b *Broker) applyExitSlippageLocked(side domain.Side, price decimal.Decimal) decimal.Decimal {
	factor := b.config.SlippageBps.Div(decimal.NewFromInt(10000))
	if side == domain.Long {
		return price.Mul(decimal.NewFromInt(1).Sub(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Add(factor))
}

// applyEntrySlippageLocked applies adverse slippage to an opening fill: a
// LONG entry buys (adverse = higher price), a SHORT entry sells (adverse =
// lower price).
func (b *Broker) applyEntrySlippageLocked(side domain.Side, price decimal.Decimal) decimal.Decimal {
	factor := b.config.SlippageBps.Div(decimal.NewFromInt(10000))
	if side == domain.Long {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}
