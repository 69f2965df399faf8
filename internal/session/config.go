// Package session implements the concurrent session runtime: the
// cooperative tasks (market data ingestion, tick watchdog, execution,
// heartbeat, hardware watchdog, stale-data monitor, duration timer,
// kill-switch monitor, funding settlement, checkpoint) that drive one
// trading session from startup to orderly shutdown, plus the lifecycle
// coordinator that supervises them.
package session

import (
	"fmt"
	"time"

	"tradesession/internal/broker"
	"tradesession/internal/risk"
	"tradesession/internal/safety"

	"github.com/shopspring/decimal"
)

// ExecutionMode selects whether the session trades against the paper
// broker only or also forwards fills to a live exchange via the Provider.
type ExecutionMode string

const (
	ExecutionPaper ExecutionMode = "paper"
	ExecutionLive  ExecutionMode = "live"
)

// Config is SessionConfig from spec.md §4.5: everything the lifecycle
// coordinator needs to validate, construct its collaborators, and run the
// session's cooperative tasks.
type Config struct {
	Symbol         string
	Interval       string
	DurationMin    int
	ExecutionMode  ExecutionMode
	StateDir       string
	LogDir         string

	StartingBalance    decimal.Decimal
	DryRun             bool
	ExecutionLatencyMS int
	StaleTimeout       time.Duration

	MinHistoryBars int
	HistoryRetries int
	HistoryBackoff time.Duration

	MaxCandleBuffer      int
	MaxErrorsPerSession  int
	ExecutionQueueDepth  int

	HeartbeatInterval    time.Duration
	WatchdogTickInterval time.Duration
	CheckpointInterval   time.Duration
	KillSwitchInterval   time.Duration
	StaleCheckInterval   time.Duration
	HardwareWatchdogInterval time.Duration
	HardwareWatchdogMaxAge   time.Duration
	MaxMemoryMB          int
	MetricsPort          int

	BrokerConfig   broker.Config
	TradingCircuit risk.TradingCircuitConfig
	ErrorCircuit   risk.ErrorCircuitConfig
	GateConfig     safety.GateConfig
}

// DefaultConfig returns a Config populated with the literal interval and
// capacity defaults spec.md names throughout §4 and §5, for the given
// symbol. Callers override fields loaded from SessionConfig's YAML file or
// the CLI.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:                   symbol,
		Interval:                 "1m",
		DurationMin:              60,
		ExecutionMode:            ExecutionPaper,
		StartingBalance:          decimal.NewFromInt(10000),
		ExecutionLatencyMS:       50,
		StaleTimeout:             30 * time.Second,
		MinHistoryBars:           200,
		HistoryRetries:           5,
		HistoryBackoff:           10 * time.Second,
		MaxCandleBuffer:          2000,
		MaxErrorsPerSession:      20,
		ExecutionQueueDepth:      64,
		HeartbeatInterval:        time.Second,
		WatchdogTickInterval:     50 * time.Millisecond,
		CheckpointInterval:       60 * time.Second,
		KillSwitchInterval:       500 * time.Millisecond,
		StaleCheckInterval:       time.Second,
		HardwareWatchdogInterval: time.Second,
		HardwareWatchdogMaxAge:   60 * time.Second,
		MaxMemoryMB:              1500,
		MetricsPort:              9090,
		BrokerConfig:             broker.DefaultConfig(symbol),
		GateConfig: safety.GateConfig{
			MaxOrdersPerMinute: 60,
		},
	}
}

// Validate reports the first configuration defect found. A non-nil result
// is fatal at startup: per spec.md §7, "Config validation failure at
// startup: fatal; no session starts."
func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Interval == "" {
		return fmt.Errorf("interval is required")
	}
	if c.DurationMin <= 0 {
		return fmt.Errorf("duration_min must be positive, got %d", c.DurationMin)
	}
	if c.ExecutionMode != ExecutionPaper && c.ExecutionMode != ExecutionLive {
		return fmt.Errorf("unknown execution_mode %q", c.ExecutionMode)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if !c.StartingBalance.IsPositive() {
		return fmt.Errorf("starting_balance must be positive")
	}
	if c.ExecutionLatencyMS < 0 {
		return fmt.Errorf("execution_latency_ms must be non-negative")
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("stale_timeout must be positive")
	}
	if c.ExecutionMode == ExecutionLive && c.GateConfig.MaxOrdersPerMinute <= 0 {
		return fmt.Errorf("live sessions require a positive max_orders_per_minute gate")
	}
	for _, d := range []time.Duration{c.HeartbeatInterval, c.WatchdogTickInterval, c.CheckpointInterval,
		c.KillSwitchInterval, c.StaleCheckInterval, c.HardwareWatchdogInterval} {
		if d < 0 {
			return fmt.Errorf("task intervals must be non-negative, got %s", d)
		}
	}
	return nil
}
