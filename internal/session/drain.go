package session

import (
	"context"
	"time"

	"tradesession/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	pendingFillGrace  = 2 * time.Second
	brokerShutdownCap = 5 * time.Second
)

// drain implements the shutdown drain sequence of spec.md §4.5, in order:
// emit SessionStopped once, cancel resting working orders, wait for
// in-flight fills to settle, drain any execution_queue items that never
// reached a task into the broker's working orders so they survive to disk
// (Testable Property 8), force-close any still-open position, persist
// final state, and emit final metrics.
func (s *Session) drain() Report {
	reason := s.shutdown.Reason()
	if reason == ReasonNone {
		reason = ReasonManualStop
	}

	s.appendEvent(domain.EventSessionStopped, map[string]interface{}{
		"reason": string(reason),
	})

	if s.cfg.ExecutionMode == ExecutionLive {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.provider.CancelAllOrders(cancelCtx); err != nil {
			s.logger.Warn("failed to cancel resting live orders", "error", err.Error())
		}
		cancel()
	}
	cancelled := s.broker.CancelAllWorkingOrders()
	if len(cancelled) > 0 {
		s.logger.Info("cancelled working orders on shutdown", "count", len(cancelled))
	}

	s.waitForInFlight(pendingFillGrace)

	drained := s.drainExecutionQueue()

	if pos := s.broker.Position(); pos != nil {
		price := s.exitPrice()
		exits := s.broker.CloseAll(price)
		for _, exit := range exits {
			s.exitCount.Add(1)
			s.logger.Info("force-closed open position on shutdown", "reason", string(exit.Reason), "price", exit.Price.String())
		}
	}

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- s.broker.Shutdown() }()
	select {
	case err := <-shutdownDone:
		if err != nil {
			s.logger.Error("broker shutdown persist failed", "error", err.Error())
		}
	case <-time.After(brokerShutdownCap):
		s.logger.Error("broker shutdown exceeded cap, continuing shutdown")
	}

	s.offloadPool.Stop()

	return s.buildReport(reason, len(drained))
}

// waitForInFlight polls the in-flight execution counter until it drops to
// zero or grace elapses.
func (s *Session) waitForInFlight(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if s.inFlight.Load() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// drainExecutionQueue empties whatever remains in the queue (orders the
// execution task never got to dequeue) into the broker's working-order
// book, so a crash or shutdown right before execution never silently
// drops an order the strategy already committed to.
func (s *Session) drainExecutionQueue() []domain.WorkingOrder {
	var drained []domain.WorkingOrder
	for {
		select {
		case item := <-s.executionQueue:
			wo := domain.WorkingOrder{
				ClientOrderID: item.order.ClientOrderID,
				Side:          item.order.Side,
				EntryType:     item.order.EntryType,
				Entry:         item.order.Entry,
				SL:            item.order.SL,
				TP:            item.order.TP,
				Qty:           item.order.Qty,
				CreatedAt:     item.enqueuedAt,
			}
			s.broker.EnqueueWorkingOrder(wo)
			drained = append(drained, wo)
		default:
			return drained
		}
	}
}

// exitPrice picks the force-close reference price: the latest valid tick
// if one has been observed, else the last seen candle's close.
func (s *Session) exitPrice() (price decimal.Decimal) {
	if tick := s.latestTick.Load(); tick != nil && tick.Valid() {
		return tick.Last
	}
	s.candlesMu.Lock()
	defer s.candlesMu.Unlock()
	if n := len(s.candles); n > 0 {
		return s.candles[n-1].Close
	}
	return price
}

func (s *Session) buildReport(reason Reason, drainedOrders int) Report {
	return Report{
		Reason:        reason,
		StartedAt:     s.startedAt,
		EndedAt:       time.Now().UTC(),
		Fills:         int(s.fillCount.Load()),
		Exits:         int(s.exitCount.Load()),
		RealizedPnL:   s.broker.CurrentEquity().Sub(s.cfg.StartingBalance).String(),
		FinalEquity:   s.broker.CurrentEquity().String(),
		TaskErrors:    s.errCount.Load(),
		DrainedOrders: drainedOrders,
		KillSwitchHit: s.killHit.Load(),
	}
}
