package session

import (
	"context"

	"tradesession/internal/domain"
)

// Strategy is the signal pipeline's external interface into the session
// runtime: given the observed candle history and the broker's current
// position, it decides whether to submit an Order this bar. Signal and
// setup computation are out of scope for the core (spec.md §1); the
// runtime only ever consumes this interface.
type Strategy interface {
	OnCandle(ctx context.Context, candles []domain.Candle, pos *domain.Position) (*domain.Order, error)
}

// NullStrategy never places an order. It is the coordinator's default when
// no strategy is configured, and a convenient base for session tests that
// only care about market-data plumbing.
type NullStrategy struct{}

func (NullStrategy) OnCandle(context.Context, []domain.Candle, *domain.Position) (*domain.Order, error) {
	return nil, nil
}

// FuncStrategy adapts a plain function to the Strategy interface, for
// tests that want to inject a specific order on a specific bar without
// defining a named type.
type FuncStrategy func(ctx context.Context, candles []domain.Candle, pos *domain.Position) (*domain.Order, error)

func (f FuncStrategy) OnCandle(ctx context.Context, candles []domain.Candle, pos *domain.Position) (*domain.Order, error) {
	return f(ctx, candles, pos)
}

var (
	_ Strategy = NullStrategy{}
	_ Strategy = FuncStrategy(nil)
)
