package strategy

import (
	"math"
	"time"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

func trackedFromOpen(o exchange.OpenOrder, role Role, s *Session) *TrackedOrder {
	t := &TrackedOrder{
		ClientID:     o.ClientOrderID,
		OrderID:      o.OrderID,
		Role:         role,
		Side:         o.Side,
		PositionSide: o.PositionSide,
		Type:         o.Type,
		Quantity:     o.Quantity,
		TriggerPrice: o.StopPrice,
		LimitPrice:   o.Price,
		State:        OrderOpen,
		CreatedAt:    s.Now(),
	}
	if t.ClientID == "" {
		t.ClientID = "venue-" + o.OrderID
	}
	return t
}

// recoveredCycle attaches an ACTIVE cycle for a position found on the venue.
func recoveredCycle(s *Session, v Variant, side types.Side, pos types.PositionSnapshot, taken time.Time) *Cycle {
	sig := types.Signal{ID: "recovered", Direction: side, ConfirmedAt: taken, ReferencePrice: pos.EntryPrice}
	plan := sizing.Plan{
		Mode:        s.quantity.Mode,
		Progression: s.quantity.Progression,
		StepSize:    s.quantity.Step,
		Quantity:    pos.Quantity,
		Filters:     s.Filters(),
	}
	c := s.openCycle(v, sig, plan)
	c.Recovered = true
	c.State = StateActive
	c.SetEntry(pos.EntryPrice)
	c.addFill(side, pos.Quantity, pos.EntryPrice)
	c.OrderCount = 1
	return c
}

// rebuildHedged reconstructs a two-legged cycle. The lighter leg is taken as
// the signal leg since the hedge is sized as a multiple of the entry.
func rebuildHedged(s *Session, v Variant, snap exchange.Snapshot, protective Role) *Cycle {
	for _, side := range types.Sides {
		if s.Cycle(side).Open() {
			return nil
		}
	}
	long, short := snap.Position(types.Long), snap.Position(types.Short)
	var side types.Side
	switch {
	case long.Open() && short.Open():
		side = types.Long
		if short.Quantity < long.Quantity {
			side = types.Short
		}
	case long.Open():
		side = types.Long
	case short.Open():
		side = types.Short
	default:
		if len(snap.OpenOrders) > 0 {
			logger.Warnf("recovery: %d resting orders without a position left untouched", len(snap.OpenOrders))
		}
		return nil
	}

	c := recoveredCycle(s, v, side, snap.Position(side), snap.TakenAt)
	if opp := snap.Position(side.Opposite()); opp.Open() {
		c.addFill(opp.Side, opp.Quantity, opp.EntryPrice)
		c.SetHedge(opp.EntryPrice)
		c.ProtectionFilled = true
		c.OrderCount++
	}
	for _, oo := range snap.OpenOrders {
		var role Role
		switch {
		case oo.Type == exchange.OrderTakeProfit && oo.Reducing():
			role = targetRole(c, oo.PositionSide)
		case oo.Type == exchange.OrderStopMarket && oo.Reducing():
			role = RoleCrossStop
		case oo.Type == exchange.OrderStopMarket && oo.PositionSide != side && !c.ProtectionFilled:
			role = protective
			c.SetHedge(oo.StopPrice)
		case oo.Type == exchange.OrderStopMarket:
			role = RoleCascade
		default:
			logger.Warnf("recovery: ignoring %s %s order %s", oo.Type, oo.PositionSide, oo.OrderID)
			continue
		}
		s.adopt(c, trackedFromOpen(oo, role, s))
	}
	if c.HedgePrice > 0 {
		c.Distance = math.Abs(c.EntryPrice - c.HedgePrice)
	}
	logger.Warnf("recovery: rebuilt %s cycle %s on %s entry=%.8g hedge=%.8g long=%.8g short=%.8g orders=%d",
		v, c.ID, side, c.EntryPrice, c.HedgePrice, c.Filled[types.Long], c.Filled[types.Short], len(c.Orders))
	return c
}

// rebuildSingle reconstructs an independent one-leg cycle for side.
func rebuildSingle(s *Session, v Variant, snap exchange.Snapshot, side types.Side) *Cycle {
	if s.Cycle(side).Open() {
		return nil
	}
	pos := snap.Position(side)
	if !pos.Open() {
		return nil
	}
	c := recoveredCycle(s, v, side, pos, snap.TakenAt)
	for _, oo := range snap.OrdersFor(side) {
		if !oo.Reducing() {
			continue
		}
		switch oo.Type {
		case exchange.OrderTakeProfit:
			s.adopt(c, trackedFromOpen(oo, RoleTPSignal, s))
		case exchange.OrderStopMarket:
			c.StopPrice = oo.StopPrice
			s.adopt(c, trackedFromOpen(oo, RoleSL, s))
		}
	}
	logger.Warnf("recovery: rebuilt %s cycle %s on %s qty=%.8g entry=%.8g orders=%d",
		v, c.ID, side, pos.Quantity, pos.EntryPrice, len(c.Orders))
	return c
}
