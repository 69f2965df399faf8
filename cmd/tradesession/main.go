package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/provider"
	"tradesession/internal/session"
	"tradesession/pkg/logging"
	"tradesession/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/session.yaml", "Path to session configuration file")
	symbol := flag.String("symbol", "", "Symbol override (e.g. BTCUSDT)")
	mode := flag.String("mode", "", "Execution mode override: paper or live")
	logLevel := flag.String("log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tradesession version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	logger, err := logging.NewZapLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
		cfg.BrokerConfig.Symbol = *symbol
	}
	if *mode != "" {
		cfg.ExecutionMode = session.ExecutionMode(*mode)
	}
	applyEnvOverrides(&cfg)

	meterName := fmt.Sprintf("tradesession_%s", strings.ToLower(cfg.Symbol))
	if err := telemetry.InitMetrics(meterName); err != nil {
		logger.Warn("failed to initialize metrics exporter", "error", err.Error())
	} else {
		logger.Info("metrics exporter initialized")
	}
	metricsSrv := telemetry.NewServer(cfg.MetricsPort, logger)
	metricsSrv.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := metricsSrv.Stop(stopCtx); err != nil {
			logger.Warn("failed to stop metrics server", "error", err.Error())
		}
	}()

	prov, err := buildProvider(cfg, logger)
	if err != nil {
		logger.Error("failed to build market data provider", "error", err.Error())
		os.Exit(1)
	}

	sess := session.New(cfg, prov, session.NullStrategy{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		sess.Stop()
	}()

	logger.Info("starting session", "symbol", cfg.Symbol, "mode", string(cfg.ExecutionMode),
		"version", version)

	report, err := sess.Run(ctx)
	if err != nil {
		logger.Error("session run failed", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("session stopped", "reason", string(report.Reason), "fills", report.Fills,
		"exits", report.Exits, "final_equity", report.FinalEquity, "task_errors", report.TaskErrors)

	os.Exit(exitCode(report))
}

// exitCode maps a session Report onto the CLI wrapper's informative exit
// codes (spec.md §6): 0 normal, 1 error, 99 kill-switch.
func exitCode(report session.Report) int {
	switch {
	case report.KillSwitchHit:
		return 99
	case report.Reason == session.ReasonTaskFailed || report.Reason == session.ReasonErrorBudget ||
		report.Reason == session.ReasonWatchdogFrozen || report.Reason == session.ReasonMemoryLimit:
		return 1
	default:
		return 0
	}
}

// applyEnvOverrides applies the environment-variable overrides spec.md §6
// documents: LA_KILL_SWITCH is read directly by the kill-switch task and
// needs no config plumbing; LA_MAX_MEMORY_MB is the one applied here. The
// exchange credentials are read by buildProvider.
func applyEnvOverrides(cfg *session.Config) {
	if v := os.Getenv("LA_MAX_MEMORY_MB"); v != "" {
		var mb int
		if _, err := fmt.Sscanf(v, "%d", &mb); err == nil && mb > 0 {
			cfg.MaxMemoryMB = mb
		}
	}
}

// buildProvider constructs the domain.Provider for the configured
// execution mode: a live Binance USDT-M futures adapter for "live"
// (credentialed via the exchange API key/secret env vars spec.md §6
// names BITUNIX_API_KEY/BITUNIX_API_SECRET), or an empty deterministic
// replay provider for "paper" — a real strategy harness supplies its own
// ReplayProvider directly rather than going through this CLI entrypoint.
func buildProvider(cfg session.Config, logger domain.Logger) (domain.Provider, error) {
	if cfg.ExecutionMode == session.ExecutionLive {
		apiKey := os.Getenv("BITUNIX_API_KEY")
		apiSecret := os.Getenv("BITUNIX_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, fmt.Errorf("live execution mode requires BITUNIX_API_KEY and BITUNIX_API_SECRET")
		}
		return provider.NewBinanceProvider(provider.BinanceConfig{
			Symbol:    cfg.Symbol,
			Interval:  cfg.Interval,
			APIKey:    apiKey,
			APISecret: apiSecret,
		}, logger), nil
	}
	return provider.NewReplayProvider(nil, nil), nil
}
