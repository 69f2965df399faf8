package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"tradesession/internal/broker"
	"tradesession/internal/domain"
	"tradesession/internal/eventlog"
	"tradesession/internal/risk"
	"tradesession/internal/safety"
	"tradesession/internal/state"
	"tradesession/pkg/concurrency"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// executionItem is one unit handed from market_data to the execution
// task via the execution queue: the order the strategy wants placed, the
// candle it was decided on, and the simulated submission latency.
type executionItem struct {
	order         domain.Order
	candle        domain.Candle
	latencyMS     int
	enqueuedAt    time.Time
	correlationID string
}

// Report is the final summary the coordinator emits at the end of Run —
// the natural closure of spec.md §4.5's drain step "emit final metrics".
type Report struct {
	Reason         Reason
	StartedAt      time.Time
	EndedAt        time.Time
	Fills          int
	Exits          int
	RealizedPnL    string
	FinalEquity    string
	TaskErrors     int32
	DrainedOrders  int
	KillSwitchHit  bool
}

// Session is the lifecycle coordinator: it owns every piece of mutable
// state the ten cooperative tasks share (spec.md §5 "shared-resource
// policy") and drives one session from startup through orderly shutdown.
type Session struct {
	cfg      Config
	logger   domain.Logger
	provider domain.Provider
	strategy Strategy

	stateMgr  *state.Manager
	broker    *broker.Broker
	errorCB   *risk.ErrorCircuitBreaker
	tradingCB *risk.TradingCircuitBreaker
	gates     *safety.Gates
	events    *eventlog.Log

	// offloadPool runs the checkpoint task's disk-write step off the
	// cooperative loop. The strategy callback is not offloaded; it runs
	// inline in the market-data task.
	offloadPool *concurrency.WorkerPool

	executionQueue chan executionItem

	candlesMu sync.Mutex
	candles   []domain.Candle

	latestTick   atomic.Pointer[domain.Tick]
	lastDataTs   atomic.Int64 // unix nano of the last candle or valid tick observed
	lastHeartbeat atomic.Int64 // unix nano, written by the heartbeat task; the hardware watchdog seeds it only while still zero

	instrument atomic.Pointer[domain.InstrumentInfo] // fetched once at startup; nil unless fetchInstrumentInfo succeeds

	shutdown *shutdownState
	errCount atomic.Int32

	fillCount atomic.Int32
	exitCount atomic.Int32
	killHit   atomic.Bool
	inFlight  atomic.Int32

	lastFundingHourKey atomic.Value // string, written only by the funding task

	// exitFunc is os.Exit by default; tests override it so the hardware
	// watchdog's liveness-fault path is observable without killing the
	// test binary (spec.md §8 Testable Property 9).
	exitFunc func(code int)

	startedAt time.Time
}

// New constructs a Session and its collaborators from cfg. It does not
// touch disk or the network; call Run to start the session.
func New(cfg Config, provider domain.Provider, strategy Strategy, logger domain.Logger) *Session {
	if strategy == nil {
		strategy = NullStrategy{}
	}

	stateMgr := state.NewManager(filepath.Join(cfg.StateDir, "unified_state.json"), logger)
	gates := safety.NewGates(withKillSwitchDir(cfg.GateConfig, cfg.StateDir), logger)
	errorCB := risk.NewErrorCircuitBreaker(cfg.ErrorCircuit)
	tradingCB := risk.NewTradingCircuitBreaker(cfg.TradingCircuit)
	events := eventlog.NewLog(cfg.StateDir, logger)
	b := broker.New(cfg.BrokerConfig, cfg.StartingBalance, gates, tradingCB, stateMgr, events, logger)
	offloadPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "session-offload",
		MaxWorkers: 2,
	}, logger)

	s := &Session{
		cfg:            cfg,
		logger:         logger,
		provider:       provider,
		strategy:       strategy,
		stateMgr:       stateMgr,
		broker:         b,
		errorCB:        errorCB,
		tradingCB:      tradingCB,
		gates:          gates,
		events:         events,
		offloadPool:    offloadPool,
		executionQueue: make(chan executionItem, cfg.ExecutionQueueDepth),
		shutdown:       newShutdownState(),
		exitFunc:       defaultExit,
	}
	s.latestTick.Store(&domain.Tick{})
	s.lastFundingHourKey.Store("")
	return s
}

func withKillSwitchDir(gc safety.GateConfig, stateDir string) safety.GateConfig {
	if gc.KillSwitchDir == "" {
		gc.KillSwitchDir = stateDir
	}
	return gc
}

// Stop requests an orderly shutdown with ReasonManualStop. Safe to call
// from outside the session, e.g. an OS signal handler in cmd/tradesession.
func (s *Session) Stop() {
	s.shutdown.Request(ReasonManualStop)
}

// Broker exposes the broker for callers (tests, the CLI) that need to
// inspect session state after Run returns.
func (s *Session) Broker() *broker.Broker { return s.broker }

// Run executes the full session lifecycle: config validation, collaborator
// startup and state restore, the hardware watchdog, historical-candle
// seeding, the nine cooperative tasks, and the shutdown drain sequence
// (spec.md §4.5). It returns once the session has fully drained.
func (s *Session) Run(parent context.Context) (Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid session config: %w", err)
	}

	s.startedAt = time.Now().UTC()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		<-s.shutdown.Done()
		cancel()
	}()

	if err := s.stateMgr.Load(); err != nil {
		s.logger.Warn("failed to load persisted session state", "error", err.Error())
	}
	if err := s.broker.LoadState(); err != nil {
		s.logger.Warn("failed to restore broker state", "error", err.Error())
	}
	s.applyStaleDrawdownGuard()

	if err := s.events.Open(); err != nil {
		return Report{}, fmt.Errorf("open event log: %w", err)
	}
	defer s.events.Close()

	go s.runHardwareWatchdog(ctx)

	s.seedHistory(ctx)
	s.fetchInstrumentInfo(ctx)

	if s.cfg.ExecutionMode == ExecutionLive {
		s.reconcileLivePosition(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	tasks := []struct {
		name string
		run  func(context.Context) error
	}{
		{"market_data", s.runMarketData},
		{"watchdog_tick", s.runWatchdogTick},
		{"execution", s.runExecution},
		{"heartbeat", s.runHeartbeat},
		{"stale_data", s.runStaleData},
		{"timer", s.runTimer},
		{"kill_switch", s.runKillSwitch},
		{"funding", s.runFunding},
		{"checkpoint", s.runCheckpoint},
	}
	for _, t := range tasks {
		run := t.run
		name := t.name
		g.Go(func() error {
			if err := run(gctx); err != nil {
				s.recordTaskError(name, err)
				return err
			}
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr != nil {
		s.shutdown.Request(ReasonTaskFailed)
	}

	report := s.drain()
	if waitErr != nil && report.Reason == ReasonTaskFailed {
		s.logger.Error("session ended after task failure", "error", waitErr.Error())
	}
	return report, nil
}

// applyStaleDrawdownGuard implements spec.md §4.5 startup item 3: if the
// session restarts flat (no open exposure) and the persisted drawdown
// already meets or exceeds the trading breaker's trip threshold, a stale
// number would trip the breaker on the very first equity update. Resetting
// starting equity to the current mark gives the new session a clean
// baseline instead of an instant, spurious trip.
func (s *Session) applyStaleDrawdownGuard() {
	if s.broker.Position() != nil {
		return
	}
	starting := s.tradingCB.StartingEquity()
	if !starting.IsPositive() {
		return
	}
	current := s.broker.CurrentEquity()
	drawdownPct := starting.Sub(current).Div(starting).Mul(decimal.NewFromInt(100))
	if s.cfg.TradingCircuit.MaxDailyDrawdownPct.IsZero() {
		return
	}
	if drawdownPct.GreaterThanOrEqual(s.cfg.TradingCircuit.MaxDailyDrawdownPct) {
		s.logger.Warn("stale persisted drawdown at or above trip threshold with no open exposure; resetting starting equity",
			"starting_equity", starting.String(), "current_equity", current.String())
		s.broker.ResetStartingEquityToCurrent()
	}
}

// checkTradingBreaker requests shutdown once the trading breaker has
// tripped. Called after every broker interaction that can realize PnL, so
// a drawdown or loss-streak trip ends the session on the very next
// evaluation rather than lingering until a task happens to notice.
func (s *Session) checkTradingBreaker() {
	if s.tradingCB.IsTripped() {
		s.shutdown.Request(ReasonCircuitOpen)
	}
}

func (s *Session) recordTaskError(task string, err error) {
	n := s.errCount.Add(1)
	s.appendEvent(domain.EventExecutionTaskErr, map[string]interface{}{
		"task":  task,
		"error": err.Error(),
		"count": n,
	})
	if int(n) >= s.cfg.MaxErrorsPerSession {
		s.shutdown.Request(ReasonErrorBudget)
	}
}

func (s *Session) appendEvent(name domain.EventName, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Append(domain.Event{Name: name, Timestamp: time.Now().UTC(), Payload: payload}); err != nil {
		s.logger.Warn("failed to append event", "event", string(name), "error", err.Error())
	}
}

func defaultExit(code int) { os.Exit(code) }
