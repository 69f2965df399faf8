package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestTradingCircuitBreaker_ConsecutiveLoss(t *testing.T) {
	cb := NewTradingCircuitBreaker(TradingCircuitConfig{
		MaxDailyDrawdownPct:  dec(50),
		MaxConsecutiveLosses: 3,
	})
	cb.SetStartingEquity(dec(10000))

	if cb.IsTripped() {
		t.Fatal("circuit breaker should not be tripped initially")
	}

	loss := dec(-10)
	cb.UpdateEquity(dec(9990), &loss)
	if cb.IsTripped() {
		t.Error("should not trip after 1 loss")
	}

	win := dec(5)
	cb.UpdateEquity(dec(9995), &win)
	if cb.ConsecutiveLosses() != 0 {
		t.Errorf("consecutive losses should reset after a win, got %d", cb.ConsecutiveLosses())
	}

	cb.UpdateEquity(dec(9990), &loss)
	cb.UpdateEquity(dec(9980), &loss)
	cb.UpdateEquity(dec(9970), &loss)

	if !cb.IsTripped() {
		t.Error("should trip after 3 consecutive losses")
	}
}

func TestTradingCircuitBreaker_Drawdown(t *testing.T) {
	cb := NewTradingCircuitBreaker(TradingCircuitConfig{
		MaxDailyDrawdownPct: dec(1), // 1%
	})
	cb.SetStartingEquity(dec(10000))

	loss := dec(-150)
	cb.UpdateEquity(dec(9850), &loss)

	if !cb.IsTripped() {
		t.Error("should trip once drawdown exceeds MaxDailyDrawdownPct")
	}
}

func TestTradingCircuitBreaker_Reset(t *testing.T) {
	cb := NewTradingCircuitBreaker(TradingCircuitConfig{
		MaxConsecutiveLosses: 1,
	})
	cb.SetStartingEquity(dec(1000))

	loss := dec(-10)
	cb.UpdateEquity(dec(990), &loss)
	if !cb.IsTripped() {
		t.Fatal("should be tripped")
	}

	cb.Reset()
	if cb.IsTripped() {
		t.Error("should not be tripped after reset")
	}
	if cb.ConsecutiveLosses() != 0 {
		t.Error("consecutive losses should be 0 after reset")
	}
}

func TestTradingCircuitBreaker_PullbackAboveStartDoesNotTrip(t *testing.T) {
	cb := NewTradingCircuitBreaker(TradingCircuitConfig{
		MaxDailyDrawdownPct: dec(5),
	})
	cb.SetStartingEquity(dec(1000))

	cb.UpdateEquity(dec(1100), nil)
	cb.UpdateEquity(dec(1080), nil)

	if cb.IsTripped() {
		t.Error("small pullback from a higher mark within the starting-equity drawdown bound should not trip")
	}
}

func TestTradingCircuitBreaker_NoLimitsConfigured(t *testing.T) {
	cb := NewTradingCircuitBreaker(TradingCircuitConfig{})
	cb.SetStartingEquity(dec(1000))

	loss := dec(-999)
	cb.UpdateEquity(dec(1), &loss)

	if cb.IsTripped() {
		t.Error("zero-value limits disable both checks, so no drawdown or streak should trip")
	}
}
