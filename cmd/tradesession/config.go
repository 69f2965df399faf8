package main

import (
	"fmt"
	"os"
	"time"

	"tradesession/internal/broker"
	"tradesession/internal/risk"
	"tradesession/internal/safety"
	"tradesession/internal/session"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of a session's configuration file,
// loaded via gopkg.in/yaml.v3 the way the teacher's live_server and
// exchange_connector commands load theirs.
type FileConfig struct {
	Symbol        string `yaml:"symbol"`
	Interval      string `yaml:"interval"`
	DurationMin   int    `yaml:"duration_min"`
	ExecutionMode string `yaml:"execution_mode"`
	StateDir      string `yaml:"state_dir"`
	LogDir        string `yaml:"log_dir"`

	StartingBalance    float64 `yaml:"starting_balance"`
	DryRun             bool    `yaml:"dry_run"`
	ExecutionLatencyMS int     `yaml:"execution_latency_ms"`
	StaleTimeoutSec    int     `yaml:"stale_timeout_sec"`
	MinHistoryBars     int     `yaml:"min_history_bars"`
	MetricsPort        int     `yaml:"metrics_port"`

	Broker struct {
		IsInverse      bool    `yaml:"is_inverse"`
		TakerFeeBps    float64 `yaml:"taker_fee_bps"`
		MakerFeeBps    float64 `yaml:"maker_fee_bps"`
		SlippageBps    float64 `yaml:"slippage_bps"`
		VolumeCapRatio float64 `yaml:"volume_cap_ratio"`
		TrailActivateR float64 `yaml:"trail_activate_r"`
		TrailATRMult   float64 `yaml:"trail_atr_mult"`
	} `yaml:"broker"`

	TradingCircuit struct {
		MaxDailyDrawdownPct  float64 `yaml:"max_daily_drawdown_pct"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	} `yaml:"trading_circuit"`

	ErrorCircuit struct {
		MaxFailures        int `yaml:"max_failures"`
		ResetTimeoutSec    int `yaml:"reset_timeout_sec"`
	} `yaml:"error_circuit"`

	Gates struct {
		MaxOrdersPerMinute   int                `yaml:"max_orders_per_minute"`
		MaxPositionSizeUSD   float64            `yaml:"max_position_size_usd"`
		MaxPositionPerSymbol map[string]float64 `yaml:"max_position_per_symbol"`
	} `yaml:"gates"`
}

// LoadConfig reads path and converts it into a session.Config, applying the
// literal defaults of session.DefaultConfig for anything the file omits.
func LoadConfig(path string) (session.Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return session.Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := session.DefaultConfig(fc.Symbol)
	if fc.Interval != "" {
		cfg.Interval = fc.Interval
	}
	if fc.DurationMin > 0 {
		cfg.DurationMin = fc.DurationMin
	}
	if fc.ExecutionMode != "" {
		cfg.ExecutionMode = session.ExecutionMode(fc.ExecutionMode)
	}
	cfg.StateDir = fc.StateDir
	cfg.LogDir = fc.LogDir
	if fc.StartingBalance > 0 {
		cfg.StartingBalance = decimal.NewFromFloat(fc.StartingBalance)
	}
	cfg.DryRun = fc.DryRun
	if fc.ExecutionLatencyMS > 0 {
		cfg.ExecutionLatencyMS = fc.ExecutionLatencyMS
	}
	if fc.StaleTimeoutSec > 0 {
		cfg.StaleTimeout = time.Duration(fc.StaleTimeoutSec) * time.Second
	}
	if fc.MinHistoryBars > 0 {
		cfg.MinHistoryBars = fc.MinHistoryBars
	}
	if fc.MetricsPort > 0 {
		cfg.MetricsPort = fc.MetricsPort
	}

	cfg.BrokerConfig = broker.Config{
		Symbol:         fc.Symbol,
		IsInverse:      fc.Broker.IsInverse,
		TakerFeeBps:    decimal.NewFromFloat(fc.Broker.TakerFeeBps),
		MakerFeeBps:    decimal.NewFromFloat(fc.Broker.MakerFeeBps),
		SlippageBps:    decimal.NewFromFloat(fc.Broker.SlippageBps),
		VolumeCapRatio: decimal.NewFromFloat(orDefaultFloat(fc.Broker.VolumeCapRatio, 0.10)),
		TrailActivateR: decimal.NewFromFloat(orDefaultFloat(fc.Broker.TrailActivateR, 0.5)),
		TrailATRMult:   decimal.NewFromFloat(orDefaultFloat(fc.Broker.TrailATRMult, 1.5)),
	}

	cfg.TradingCircuit = risk.TradingCircuitConfig{
		MaxDailyDrawdownPct:  decimal.NewFromFloat(fc.TradingCircuit.MaxDailyDrawdownPct),
		MaxConsecutiveLosses: fc.TradingCircuit.MaxConsecutiveLosses,
	}
	cfg.ErrorCircuit = risk.ErrorCircuitConfig{
		MaxFailures:  fc.ErrorCircuit.MaxFailures,
		ResetTimeout: time.Duration(fc.ErrorCircuit.ResetTimeoutSec) * time.Second,
	}

	maxPerSymbol := make(map[string]decimal.Decimal, len(fc.Gates.MaxPositionPerSymbol))
	for sym, v := range fc.Gates.MaxPositionPerSymbol {
		maxPerSymbol[sym] = decimal.NewFromFloat(v)
	}
	cfg.GateConfig = safety.GateConfig{
		MaxOrdersPerMinute:   orDefaultInt(fc.Gates.MaxOrdersPerMinute, cfg.GateConfig.MaxOrdersPerMinute),
		MaxPositionSizeUSD:   decimal.NewFromFloat(fc.Gates.MaxPositionSizeUSD),
		MaxPositionPerSymbol: maxPerSymbol,
		KillSwitchDir:        fc.StateDir,
	}

	return cfg, nil
}

func orDefaultFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
