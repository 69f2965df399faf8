package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPnLRealized        = "tradesession_pnl_realized"
	MetricPnLUnrealized      = "tradesession_pnl_unrealized"
	MetricEquity             = "tradesession_equity"
	MetricWorkingOrders      = "tradesession_working_orders"
	MetricFillsTotal         = "tradesession_fills_total"
	MetricExitsTotal         = "tradesession_exits_total"
	MetricPositionSize       = "tradesession_position_size"
	MetricErrorBreakerOpen   = "tradesession_error_breaker_open"
	MetricTradingBreakerOpen = "tradesession_trading_breaker_open"
	MetricHeartbeatAgeMs     = "tradesession_heartbeat_age_ms"
	MetricCheckpointsTotal   = "tradesession_checkpoints_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PnLRealized        metric.Float64ObservableGauge
	PnLUnrealized      metric.Float64ObservableGauge
	Equity             metric.Float64ObservableGauge
	WorkingOrders      metric.Int64ObservableGauge
	FillsTotal         metric.Int64Counter
	ExitsTotal         metric.Int64Counter
	PositionSize       metric.Float64ObservableGauge
	ErrorBreakerOpen   metric.Int64ObservableGauge
	TradingBreakerOpen metric.Int64ObservableGauge
	HeartbeatAgeMs     metric.Float64ObservableGauge
	CheckpointsTotal   metric.Int64Counter

	// State for observable gauges, keyed by symbol.
	mu                sync.RWMutex
	realizedPnLMap    map[string]float64
	unrealizedPnLMap  map[string]float64
	equityMap         map[string]float64
	workingOrdersMap  map[string]int64
	positionSizeMap   map[string]float64
	errorBreakerMap   map[string]int64
	tradingBreakerMap map[string]int64
	heartbeatAgeMap   map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			realizedPnLMap:    make(map[string]float64),
			unrealizedPnLMap:  make(map[string]float64),
			equityMap:         make(map[string]float64),
			workingOrdersMap:  make(map[string]int64),
			positionSizeMap:   make(map[string]float64),
			errorBreakerMap:   make(map[string]int64),
			tradingBreakerMap: make(map[string]int64),
			heartbeatAgeMap:   make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealized, err = meter.Float64ObservableGauge(MetricPnLRealized, metric.WithDescription("Cumulative realized profit/loss"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.realizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.FillsTotal, err = meter.Int64Counter(MetricFillsTotal, metric.WithDescription("Total fills accepted by the broker"))
	if err != nil {
		return err
	}

	m.ExitsTotal, err = meter.Int64Counter(MetricExitsTotal, metric.WithDescription("Total position exits, by reason"))
	if err != nil {
		return err
	}

	m.CheckpointsTotal, err = meter.Int64Counter(MetricCheckpointsTotal, metric.WithDescription("Total successful state checkpoints"))
	if err != nil {
		return err
	}

	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Equity, err = meter.Float64ObservableGauge(MetricEquity, metric.WithDescription("Current session equity"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.equityMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.WorkingOrders, err = meter.Int64ObservableGauge(MetricWorkingOrders, metric.WithDescription("Number of unfilled working order remainders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.workingOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current position size"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.positionSizeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ErrorBreakerOpen, err = meter.Int64ObservableGauge(MetricErrorBreakerOpen, metric.WithDescription("Error circuit breaker state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.errorBreakerMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.TradingBreakerOpen, err = meter.Int64ObservableGauge(MetricTradingBreakerOpen, metric.WithDescription("Trading circuit breaker tripped state (1=tripped, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.tradingBreakerMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.HeartbeatAgeMs, err = meter.Float64ObservableGauge(MetricHeartbeatAgeMs, metric.WithDescription("Age of the last cooperative heartbeat in milliseconds"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.heartbeatAgeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

// RecordFill increments the fill counter. A no-op until InitMetrics has
// registered the instruments, so broker/session code can call it
// unconditionally even when telemetry was never initialized (tests).
func (m *MetricsHolder) RecordFill(ctx context.Context, symbol string) {
	if m.FillsTotal == nil {
		return
	}
	m.FillsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// RecordExit increments the exit counter, tagged by exit reason. No-op
// until InitMetrics runs.
func (m *MetricsHolder) RecordExit(ctx context.Context, symbol, reason string) {
	if m.ExitsTotal == nil {
		return
	}
	m.ExitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("reason", reason),
	))
}

// RecordCheckpoint increments the successful-checkpoint counter. No-op
// until InitMetrics runs.
func (m *MetricsHolder) RecordCheckpoint(ctx context.Context, symbol string) {
	if m.CheckpointsTotal == nil {
		return
	}
	m.CheckpointsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
}

func (m *MetricsHolder) SetRealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetErrorBreakerOpen(symbol string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorBreakerMap[symbol] = val
}

func (m *MetricsHolder) SetTradingBreakerOpen(symbol string, tripped bool) {
	val := int64(0)
	if tripped {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradingBreakerMap[symbol] = val
}

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetEquity(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equityMap[symbol] = value
}

func (m *MetricsHolder) SetWorkingOrders(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workingOrdersMap[symbol] = count
}

func (m *MetricsHolder) SetPositionSize(symbol string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[symbol] = size
}

func (m *MetricsHolder) SetHeartbeatAge(symbol string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatAgeMap[symbol] = ms
}
