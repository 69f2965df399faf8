package session

import (
	"context"
	"time"

	"tradesession/pkg/telemetry"
)

// runWatchdogTick is watchdog_tick_task (spec.md §4.6): every
// WatchdogTickInterval (spec default 50ms), if a position is open, it
// feeds the latest tick to the broker for intra-candle SL/TP/trail
// exits — independent of the candle-driven execution path.
func (s *Session) runWatchdogTick(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.WatchdogTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkTickExit(ctx)
		}
	}
}

func (s *Session) checkTickExit(ctx context.Context) {
	if s.broker.Position() == nil {
		return
	}
	tick := s.latestTick.Load()
	if tick == nil || !tick.Valid() {
		return
	}
	result := s.broker.OnTick(*tick)
	for _, exit := range result.Exits {
		s.exitCount.Add(1)
		telemetry.GetGlobalMetrics().RecordExit(ctx, s.cfg.Symbol, string(exit.Reason))
		s.logger.Info("tick exit", "reason", string(exit.Reason), "price", exit.Price.String(), "pnl", exit.RealizedPnL.String())
	}
	for _, errMsg := range result.Errors {
		s.logger.Warn("tick evaluation error", "error", errMsg)
	}
	if len(result.Exits) > 0 {
		s.checkTradingBreaker()
	}
}
