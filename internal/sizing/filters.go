package sizing

import (
	"math"

	"github.com/shopspring/decimal"
)

// Filters are the exchange lot/price constraints of one symbol.
type Filters struct {
	MinQty   float64 `json:"min_qty"`
	StepSize float64 `json:"step_size"`
	TickSize float64 `json:"tick_size"`
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// FloorToStep rounds v down to a multiple of step. A non-positive step
// leaves v untouched.
func FloorToStep(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return math.Max(v, 0)
	}
	s := decFromFloat(step)
	return decToFloat(decFromFloat(v).Div(s).Floor().Mul(s))
}

// CeilToStep rounds v up to a multiple of step.
func CeilToStep(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return math.Max(v, 0)
	}
	s := decFromFloat(step)
	return decToFloat(decFromFloat(v).Div(s).Ceil().Mul(s))
}

// RoundToStep rounds v to the nearest multiple of step.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	s := decFromFloat(step)
	return decToFloat(decFromFloat(v).Div(s).Round(0).Mul(s))
}

// FloorQty floors to the lot step.
func (f Filters) FloorQty(q float64) float64 { return FloorToStep(q, f.StepSize) }

// MinLot is the smallest quantity that satisfies both minQty and the step.
func (f Filters) MinLot() float64 {
	if f.MinQty <= 0 {
		return f.StepSize
	}
	return CeilToStep(f.MinQty, f.StepSize)
}

// RoundPrice rounds a price to the nearest tick.
func (f Filters) RoundPrice(p float64) float64 { return RoundToStep(p, f.TickSize) }

// FormatQty renders q with exactly as many decimals as the step size.
func (f Filters) FormatQty(q float64) string {
	return decFromFloat(f.FloorQty(q)).StringFixed(stepPrecision(f.StepSize))
}

// FormatPrice renders p with exactly as many decimals as the tick size.
func (f Filters) FormatPrice(p float64) string {
	return decFromFloat(f.RoundPrice(p)).StringFixed(stepPrecision(f.TickSize))
}

func stepPrecision(step float64) int32 {
	if step <= 0 {
		return 8
	}
	exp := decFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}
