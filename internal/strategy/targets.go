package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/nirre55/bot-final/internal/types"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func flt(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	return f
}

func sign(leg types.Side) decimal.Decimal {
	if leg == types.Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// CascadeTarget is (ref ± distance*multiplier*count) * (1 ± increment), with
// the signs following the leg being closed.
func CascadeTarget(leg types.Side, ref, distance, multiplier float64, count int, increment float64) float64 {
	s := sign(leg)
	reach := dec(distance).Mul(dec(multiplier)).Mul(decimal.NewFromInt(int64(count)))
	base := dec(ref).Add(s.Mul(reach))
	return flt(base.Mul(decimal.NewFromInt(1).Add(s.Mul(dec(increment)))))
}

// TargetTrigger places the trigger of a take-profit slightly before its limit.
func TargetTrigger(leg types.Side, level, offset float64) float64 {
	return flt(dec(level).Mul(decimal.NewFromInt(1).Sub(sign(leg).Mul(dec(offset)))))
}

// RRTarget is price ± rr risk units.
func RRTarget(leg types.Side, price, distance, rr float64) float64 {
	return flt(dec(price).Add(sign(leg).Mul(dec(distance).Mul(dec(rr)))))
}

type TargetOffsets struct {
	SafetyPercent        float64
	MinDistancePercent   float64
	SmallDistancePercent float64
}

// InitialRRTarget is the first one-risk-unit target: pulled in by a safety
// margin, pushed out when the distance is too small to clear fees.
func InitialRRTarget(leg types.Side, price, distance float64, off TargetOffsets) float64 {
	p := dec(price)
	reach := dec(distance)
	if reach.LessThan(p.Mul(dec(off.MinDistancePercent))) {
		reach = reach.Add(p.Mul(dec(off.SmallDistancePercent)))
	}
	reach = reach.Sub(p.Mul(dec(off.SafetyPercent)))
	return flt(p.Add(sign(leg).Mul(reach)))
}

// PercentTarget is avg * (1 ± pct).
func PercentTarget(leg types.Side, avg, pct float64) float64 {
	return flt(dec(avg).Mul(decimal.NewFromInt(1).Add(sign(leg).Mul(dec(pct)))))
}

// ProtectiveLevel sits beyond the recent extreme against the leg: below the
// low for a LONG, above the high for a SHORT.
func ProtectiveLevel(leg types.Side, low, high, offset float64) float64 {
	if leg == types.Short {
		return flt(dec(high).Mul(decimal.NewFromInt(1).Add(dec(offset))))
	}
	return flt(dec(low).Mul(decimal.NewFromInt(1).Sub(dec(offset))))
}

// LegPnL is the realized result of closing qty of leg opened at entry.
func LegPnL(leg types.Side, entry, exit, qty float64) float64 {
	return flt(sign(leg).Mul(dec(exit).Sub(dec(entry))).Mul(dec(qty)))
}

// BreakevenStop is the exit price for the remaining leg at which the whole
// cycle nets zero given what was already realized.
func BreakevenStop(leg types.Side, entry, qty, realized float64) float64 {
	if qty <= 0 {
		return entry
	}
	return flt(dec(entry).Sub(sign(leg).Mul(dec(realized).Div(dec(qty)))))
}

// stopWouldTrigger reports whether a closing stop at level for leg is
// already through the market at price.
func stopWouldTrigger(leg types.Side, level, price float64) bool {
	if leg == types.Long {
		return level >= price
	}
	return level <= price
}
