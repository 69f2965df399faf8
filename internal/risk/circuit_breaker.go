// Package risk implements the two independent circuit breakers that guard a
// trading session: an error breaker around flaky external calls, and a
// trading breaker over equity health. See circuit_breaker.go (trading) and
// errorbreaker.go (error).
package risk

import (
	"sync"
	"time"
	"tradesession/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// TradingCircuitConfig configures the equity-based trading breaker.
// Zero-value limits disable their respective check, matching the
// zero-means-uncapped convention of the broker config and safety gates.
type TradingCircuitConfig struct {
	MaxDailyDrawdownPct  decimal.Decimal
	MaxConsecutiveLosses int
}

// TradingCircuitBreaker trips when equity drawdown from the start-of-day
// starting equity reaches MaxDailyDrawdownPct, or when the consecutive-loss
// streak reaches MaxConsecutiveLosses. It auto-resets at the next UTC day
// boundary or on an explicit Reset.
type TradingCircuitBreaker struct {
	mu sync.RWMutex

	config TradingCircuitConfig

	startingEquity    decimal.Decimal
	peakEquity        decimal.Decimal
	consecutiveLosses int
	tripped           bool

	dayStart time.Time // UTC midnight this breaker's starting equity belongs to
}

// NewTradingCircuitBreaker creates a breaker in the CLOSED state.
func NewTradingCircuitBreaker(config TradingCircuitConfig) *TradingCircuitBreaker {
	return &TradingCircuitBreaker{config: config}
}

func utcDayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SetStartingEquity records the start-of-day equity and stamps the current
// UTC day. Every call resets the consecutive-loss streak and trip state.
func (cb *TradingCircuitBreaker) SetStartingEquity(equity decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.startingEquity = equity
	cb.peakEquity = equity
	cb.dayStart = utcDayStart(time.Now())
	cb.consecutiveLosses = 0
	cb.tripped = false
	telemetry.GetGlobalMetrics().SetTradingBreakerOpen("global", false)
}

func (cb *TradingCircuitBreaker) maybeRolloverLocked() {
	today := utcDayStart(time.Now())
	if today.After(cb.dayStart) {
		cb.dayStart = today
		cb.consecutiveLosses = 0
		cb.tripped = false
		telemetry.GetGlobalMetrics().SetTradingBreakerOpen("global", false)
	}
}

// UpdateEquity records a new equity mark and, if tradePnL is supplied,
// updates the consecutive-loss streak (reset on any non-negative pnl, else
// incremented). Trips the breaker if daily drawdown or loss-streak limits
// are breached.
func (cb *TradingCircuitBreaker) UpdateEquity(equity decimal.Decimal, tradePnL *decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeRolloverLocked()

	if equity.GreaterThan(cb.peakEquity) {
		cb.peakEquity = equity
	}

	if tradePnL != nil {
		if tradePnL.IsNegative() {
			cb.consecutiveLosses++
		} else {
			cb.consecutiveLosses = 0
		}
	}

	if cb.tripped {
		return
	}

	if cb.startingEquity.IsPositive() && cb.config.MaxDailyDrawdownPct.IsPositive() {
		drawdownPct := cb.startingEquity.Sub(equity).Div(cb.startingEquity).Mul(decimal.NewFromInt(100))
		if drawdownPct.GreaterThanOrEqual(cb.config.MaxDailyDrawdownPct) {
			cb.trip()
			return
		}
	}

	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		cb.trip()
	}
}

func (cb *TradingCircuitBreaker) trip() {
	cb.tripped = true
	telemetry.GetGlobalMetrics().SetTradingBreakerOpen("global", true)
}

// IsTripped reports the current trip state, applying a UTC-day rollover
// check first.
func (cb *TradingCircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRolloverLocked()
	return cb.tripped
}

// Reset clears the trip state and loss streak without touching starting
// equity.
func (cb *TradingCircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tripped = false
	cb.consecutiveLosses = 0
	telemetry.GetGlobalMetrics().SetTradingBreakerOpen("global", false)
}

// ConsecutiveLosses reports the current loss streak, for checkpointing.
func (cb *TradingCircuitBreaker) ConsecutiveLosses() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveLosses
}

// StartingEquity reports the recorded start-of-day equity.
func (cb *TradingCircuitBreaker) StartingEquity() decimal.Decimal {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.startingEquity
}
