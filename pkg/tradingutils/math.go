// Package tradingutils holds small decimal-precision helpers shared by the
// broker and session packages.
package tradingutils

import (
	"github.com/shopspring/decimal"
)

// QuantizeToStep rounds qty down to the nearest multiple of step. A
// zero-value step leaves qty unchanged.
func QuantizeToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	units := qty.Div(step).Floor()
	return units.Mul(step)
}
