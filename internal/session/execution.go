package session

import (
	"context"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/risk"
	"tradesession/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// runExecution is execution_task (spec.md §4.6): it drains the execution
// queue with a 1s read timeout so it observes shutdown promptly even when
// idle, simulates submission latency, and runs the order through the
// broker's fill algorithm. In live mode, a filled order is also forwarded
// to the exchange via Provider.PlaceOrder under a retry+circuit-breaker
// pipeline (the same failsafe-go composition pkg/http uses for REST
// calls); failures there count against the session error budget.
func (s *Session) runExecution(ctx context.Context) error {
	var livePipeline failsafe.Executor[any]
	if s.cfg.ExecutionMode == ExecutionLive {
		livePipeline = newExecutionPipeline()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-s.executionQueue:
			s.executeOne(ctx, item, livePipeline)
		case <-time.After(time.Second):
			// Idle tick: loop back around to re-check ctx.Done(), per
			// spec.md §4.6's "1s timeout (to observe shutdown)".
		}
	}
}

func newExecutionPipeline() failsafe.Executor[any] {
	retryPolicy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return err != nil }).
		WithMaxRetries(3).
		WithBackoff(200*time.Millisecond, 2*time.Second).
		Build()
	breaker := circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return err != nil }).
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		Build()
	return failsafe.With[any](retryPolicy, breaker)
}

func (s *Session) executeOne(ctx context.Context, item executionItem, livePipeline failsafe.Executor[any]) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	if !s.cfg.DryRun && item.latencyMS > 0 {
		timer := time.NewTimer(time.Duration(item.latencyMS) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}

	order := item.order
	result := s.broker.OnCandle(item.candle, &order)
	metrics := telemetry.GetGlobalMetrics()
	for _, fill := range result.Fills {
		s.fillCount.Add(1)
		metrics.RecordFill(ctx, s.cfg.Symbol)
		s.logger.Info("fill", "correlation_id", item.correlationID, "client_order_id", fill.ClientOrderID, "side", string(fill.Side),
			"qty", fill.Qty.String(), "price", fill.Price.String(), "partial", fill.Partial)
	}
	for _, exit := range result.Exits {
		s.exitCount.Add(1)
		metrics.RecordExit(ctx, s.cfg.Symbol, string(exit.Reason))
		s.logger.Info("exit", "correlation_id", item.correlationID, "reason", string(exit.Reason), "pnl", exit.RealizedPnL.String())
	}
	for _, errMsg := range result.Errors {
		s.logger.Warn("order rejected", "correlation_id", item.correlationID, "client_order_id", order.ClientOrderID, "error", errMsg)
	}
	s.checkTradingBreaker()

	if s.cfg.ExecutionMode == ExecutionLive && len(result.Fills) > 0 {
		s.forwardLive(ctx, order, livePipeline)
	}
}

func (s *Session) forwardLive(ctx context.Context, order domain.Order, pipeline failsafe.Executor[any]) {
	_, err := pipeline.GetWithExecution(func(exec failsafe.Execution[any]) (any, error) {
		return nil, s.provider.PlaceOrder(ctx, order)
	})
	if err != nil {
		s.errorCB.RecordFailure()
		s.recordTaskError("execution", err)
		if s.errorCB.State() == risk.StateOpen {
			s.shutdown.Request(ReasonCircuitOpen)
		}
		return
	}
	s.errorCB.RecordSuccess()
}
