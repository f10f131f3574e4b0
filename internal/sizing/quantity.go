// Package sizing computes order quantities that respect the symbol's lot
// constraints.
package sizing

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeMinimum    Mode = "minimum"
	ModeFixed      Mode = "fixed"
	ModePercentage Mode = "percentage"
)

type Progression string

const (
	ProgressionStep   Progression = "step"
	ProgressionDouble Progression = "double"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeMinimum, ModeFixed, ModePercentage:
		return m, nil
	default:
		return "", fmt.Errorf("unknown quantity mode %q", s)
	}
}

func ParseProgression(s string) (Progression, error) {
	switch p := Progression(strings.ToLower(strings.TrimSpace(s))); p {
	case ProgressionStep, ProgressionDouble:
		return p, nil
	default:
		return "", fmt.Errorf("unknown progression %q", s)
	}
}

// Input carries everything the calculator needs. Balance <= 0 means the
// balance is unavailable.
type Input struct {
	Mode           Mode
	Balance        float64
	RiskPercent    float64
	FixedQty       float64
	DistanceToStop float64
	Filters        Filters
}

// NormalRisk is the amount the cycle is allowed to lose at the configured risk.
func (in Input) NormalRisk() float64 {
	if in.Balance <= 0 || in.RiskPercent <= 0 {
		return 0
	}
	return in.Balance * in.RiskPercent
}

// Quantity returns a non-negative multiple of the step that is never below
// the minimum lot.
func Quantity(in Input) float64 {
	minLot := in.Filters.MinLot()
	var q float64
	switch in.Mode {
	case ModePercentage:
		if in.Balance <= 0 || in.DistanceToStop <= 0 || in.RiskPercent <= 0 {
			return minLot
		}
		risk := decFromFloat(in.Balance).Mul(decFromFloat(in.RiskPercent))
		q = in.Filters.FloorQty(decToFloat(risk.Div(decFromFloat(in.DistanceToStop))))
	case ModeFixed:
		q = in.Filters.FloorQty(in.FixedQty)
	default:
		q = minLot
	}
	if q < minLot {
		return minLot
	}
	return q
}

// FixedForAmount sizes a position so that a move of distance loses amount.
// Used when the loss-recovery ledger overrides the regular plan.
func FixedForAmount(amount, distance float64, f Filters) float64 {
	if amount <= 0 || distance <= 0 {
		return f.MinLot()
	}
	q := f.FloorQty(decToFloat(decFromFloat(amount).Div(decFromFloat(distance))))
	if q < f.MinLot() {
		return f.MinLot()
	}
	return q
}

// Plan is fixed at cycle start and never changes for that cycle.
type Plan struct {
	Mode        Mode        `json:"mode"`
	Progression Progression `json:"progression"`
	StepSize    float64     `json:"step_size"`
	Quantity    float64     `json:"quantity"`
	Filters     Filters     `json:"filters"`
	// Recovery is true when the ledger replaced the regular sizing.
	Recovery bool `json:"recovery,omitempty"`
}

// NextCascadeQty is the size of the next alternating order. larger is the
// quantity already held on the side that just filled, smaller the quantity on
// the side about to be added to.
func (p Plan) NextCascadeQty(larger, smaller float64) float64 {
	var q float64
	switch p.Progression {
	case ProgressionStep:
		step := p.StepSize
		if step <= 0 {
			step = p.Filters.StepSize
		}
		q = larger + step - smaller
	default:
		q = 2*larger - smaller
	}
	q = p.Filters.FloorQty(q)
	if q < p.Filters.MinLot() {
		return p.Filters.MinLot()
	}
	return q
}
