package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tradesession/internal/domain"
	"tradesession/pkg/telemetry"
)

// heartbeatRecord is the JSON shape written to <logs>/heartbeat.json
// (spec.md §6).
type heartbeatRecord struct {
	UnixTS        float64 `json:"unix_ts"`
	LastUpdatedTS float64 `json:"last_updated_ts"`
	Price         float64 `json:"price"`
	Equity        float64 `json:"equity"`
	PositionSide  string  `json:"position_side"`
}

// runHeartbeat is heartbeat_task (spec.md §4.6): every HeartbeatInterval
// (spec default 1s) it updates the monotonic lastHeartbeat timestamp the
// hardware watchdog reads, and writes the heartbeat file.
func (s *Session) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	dir := s.cfg.LogDir
	if dir == "" {
		dir = s.cfg.StateDir
	}
	path := filepath.Join(dir, "heartbeat.json")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.beat(now, path)
		}
	}
}

func (s *Session) beat(now time.Time, path string) {
	s.lastHeartbeat.Store(now.UnixNano())

	price := 0.0
	if tick := s.latestTick.Load(); tick != nil && tick.Valid() {
		price, _ = tick.Last.Float64()
	}
	equity, _ := s.broker.CurrentEquity().Float64()

	pos := s.broker.Position()
	side := string(domain.Flat)
	if pos != nil {
		side = string(pos.Side)
	}

	rec := heartbeatRecord{
		UnixTS:        float64(now.UnixNano()) / 1e9,
		LastUpdatedTS: float64(now.UnixNano()) / 1e9,
		Price:         price,
		Equity:        equity,
		PositionSide:  side,
	}

	if err := writeJSONFile(path, rec); err != nil {
		s.logger.Warn("failed to write heartbeat file", "error", err.Error())
	}

	metrics := telemetry.GetGlobalMetrics()
	metrics.SetEquity(s.cfg.Symbol, equity)
	startingBalance, _ := s.cfg.StartingBalance.Float64()
	metrics.SetRealizedPnL(s.cfg.Symbol, equity-startingBalance)
	metrics.SetWorkingOrders(s.cfg.Symbol, int64(len(s.broker.WorkingOrders())))
	if pos != nil {
		size, _ := pos.Qty.Float64()
		metrics.SetPositionSize(s.cfg.Symbol, size)
		if price > 0 {
			upnl, _ := s.broker.GetUnrealizedPnL(decimal.NewFromFloat(price)).Float64()
			metrics.SetUnrealizedPnL(s.cfg.Symbol, upnl)
		}
	} else {
		metrics.SetPositionSize(s.cfg.Symbol, 0)
		metrics.SetUnrealizedPnL(s.cfg.Symbol, 0)
	}

	s.appendEvent(domain.EventAsyncHeartbeat, map[string]interface{}{
		"price":         price,
		"equity":        equity,
		"position_side": side,
	})
}

func writeJSONFile(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
