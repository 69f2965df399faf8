package session

import (
	"context"

	"tradesession/internal/domain"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// seedHistory seeds the candle buffer via Provider.History, retrying up to
// cfg.HistoryRetries times spaced cfg.HistoryBackoff apart (spec.md §4.5
// startup item 5), then proceeds even if every attempt failed — a degraded
// start with an empty warm-up window is preferable to never starting.
func (s *Session) seedHistory(ctx context.Context) {
	policy := retrypolicy.NewBuilder[[]domain.Candle]().
		WithMaxRetries(s.cfg.HistoryRetries).
		WithDelay(s.cfg.HistoryBackoff).
		Build()
	executor := failsafe.With[[]domain.Candle](policy)

	history, err := executor.GetWithExecution(func(exec failsafe.Execution[[]domain.Candle]) ([]domain.Candle, error) {
		return s.provider.History(ctx, s.cfg.MinHistoryBars)
	})
	if err != nil {
		s.logger.Warn("history seed degraded after retries, starting with no warm-up window", "error", err.Error())
		return
	}

	s.candlesMu.Lock()
	s.candles = append([]domain.Candle(nil), history...)
	s.candlesMu.Unlock()
	s.logger.Info("seeded history", "candles", len(history))
}

// fetchInstrumentInfo retrieves the exchange's precision/size limits for
// the session symbol so orders can be quantized before they ever reach the
// broker's gate chain. A failure here is non-fatal: the broker's
// LotStep/MinNotional quantization simply becomes a no-op for the session.
func (s *Session) fetchInstrumentInfo(ctx context.Context) {
	info, err := s.provider.FetchInstrumentInfo(ctx, s.cfg.Symbol)
	if err != nil {
		s.logger.Warn("failed to fetch instrument info, proceeding without quantization", "error", err.Error())
		return
	}
	s.instrument.Store(&info)
}

// reconcileLivePosition compares the broker's restored position against
// the exchange's own view on startup, logging (never correcting — the
// spec treats crash recovery as authoritative, per §7) any divergence.
// Live-mode only; the paper broker has no external counterpart.
func (s *Session) reconcileLivePosition(ctx context.Context) {
	positions, err := s.provider.GetPendingPositions(ctx)
	if err != nil {
		s.logger.Warn("failed to reconcile live position on startup", "error", err.Error())
		return
	}

	local := s.broker.Position()
	switch {
	case local == nil && len(positions) > 0:
		s.logger.Warn("exchange reports open position but restored session state is flat",
			"exchange_positions", len(positions))
	case local != nil && len(positions) == 0:
		s.logger.Warn("restored session state has an open position but exchange reports none",
			"symbol", s.cfg.Symbol, "side", string(local.Side))
	case local != nil && len(positions) > 0:
		exch := positions[0]
		if !exch.Qty.Equal(local.Qty) || exch.Side != local.Side {
			s.logger.Warn("restored position diverges from exchange-reported position",
				"local_side", string(local.Side), "local_qty", local.Qty.String(),
				"exchange_side", string(exch.Side), "exchange_qty", exch.Qty.String())
		}
	}
}
