package strategy

import (
	"math"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/types"
)

// Cascade hedges the entry with an opposite stop and, once the hedge fills,
// keeps alternating stop orders between the two legs while both legs carry a
// take-profit that widens with every fill.
type Cascade struct {
	lifecycle
	hedge   config.HedgeConfig
	cascade config.CascadeConfig
	tp      config.TakeProfitConfig
}

func NewCascade(h config.HedgeConfig, c config.CascadeConfig, tp config.TakeProfitConfig) *Cascade {
	return &Cascade{
		lifecycle: lifecycle{variant: VariantCascade, protective: RoleHedge, hedged: true},
		hedge:     h,
		cascade:   c,
		tp:        tp,
	}
}

func (e *Cascade) OnSignal(s *Session, sig types.Signal) ([]Action, error) {
	_, acts, err := openHedged(s, e.variant, sig, e.hedge.Lookback, e.hedge.OffsetPercent, e.hedge.QuantityMultiplier)
	return acts, err
}

func (e *Cascade) OnFill(s *Session, c *Cycle, o *TrackedOrder) []Action {
	switch o.Role {
	case RoleSignal:
		c.SetEntry(o.FillPrice)
		c.Distance = math.Abs(c.EntryPrice - c.HedgePrice)
		c.addFill(o.PositionSide, o.FilledQty, o.FillPrice)
		c.OrderCount++
		c.PositionCount = 1
		acts := e.targets(s, c)
		e.promote(c)
		return acts
	case RoleHedge, RoleCascade:
		if o.Role == RoleHedge {
			c.ProtectionFilled = true
			e.promote(c)
		}
		c.addFill(o.PositionSide, o.FilledQty, o.FillPrice)
		c.OrderCount++
		c.PositionCount++
		acts := e.targets(s, c)
		return append(acts, e.next(s, c, o.PositionSide)...)
	case RoleTPSignal, RoleTPHedge:
		c.recordClose(o)
		c.Closing = true
		logger.Trade("target_filled", map[string]any{
			"cycle": c.ID, "role": string(o.Role), "leg": o.PositionSide.String(),
			"price": o.FillPrice, "qty": o.FilledQty, "positions": c.PositionCount,
		})
		acts := cancelAll(c, o, "cycle target reached")
		acts = append(acts, closeLeg(s, c, o.PositionSide.Opposite())...)
		if c.Filled[o.PositionSide.Opposite()] <= 0 {
			acts = append(acts, e.finish(s, c, "target filled")...)
		}
		return acts
	case RoleClose:
		c.recordClose(o)
		if c.Filled[types.Long] <= 0 && c.Filled[types.Short] <= 0 {
			return e.finish(s, c, "target filled, legs closed")
		}
	}
	return nil
}

// targets keeps one take-profit per held leg at the current position count.
func (e *Cascade) targets(s *Session, c *Cycle) []Action {
	if c.Distance <= 0 {
		return nil
	}
	var acts []Action
	for _, leg := range types.Sides {
		qty := c.Filled[leg]
		if qty <= 0 {
			continue
		}
		ref := c.ReferencePrice(leg)
		if ref <= 0 {
			continue
		}
		level := CascadeTarget(leg, ref, c.Distance, e.tp.Multiplier, c.PositionCount, e.tp.IncrementPercent)
		acts = append(acts, replaceTarget(s, c, targetRole(c, leg), leg, qty, level, e.tp.PriceOffset)...)
	}
	return acts
}

func targetRole(c *Cycle, leg types.Side) Role {
	if leg == c.Side {
		return RoleTPSignal
	}
	return RoleTPHedge
}

// next places the following alternating order on the lighter leg at that
// leg's original price.
func (e *Cascade) next(s *Session, c *Cycle, filled types.Side) []Action {
	if c.State == StateStopped || c.State == StateWaitingCapital {
		return nil
	}
	if c.OrderCount >= e.cascade.MaxOrders {
		c.State = StateStopped
		c.StopReason = "max orders reached"
		logger.Infof("cascade %s reached %d orders, targets stay live", c.ID, c.OrderCount)
		return nil
	}
	leg := filled.Opposite()
	price := c.ReferencePrice(leg)
	if price <= 0 {
		logger.Errorf("cascade %s has no reference price for %s, stopping", c.ID, leg)
		c.State = StateStopped
		c.StopReason = "missing reference price"
		return nil
	}
	qty := c.Plan.NextCascadeQty(c.Filled[filled], c.Filled[leg])
	if qty <= 0 {
		return nil
	}
	o := s.newOrder(c, orderSpec{
		role: RoleCascade, leg: leg, typ: exchange.OrderStopMarket,
		qty: qty, trigger: price, opening: true,
	})
	return []Action{place(o)}
}

func (e *Cascade) Recover(s *Session, snap exchange.Snapshot) []Action {
	c := rebuildHedged(s, e.variant, snap, e.protective)
	if c == nil {
		return nil
	}
	c.PositionCount = 1
	if c.Filled[c.Side.Opposite()] > 0 {
		c.PositionCount = 2
	}
	return e.missingTargets(s, c)
}

// missingTargets recreates targets for held legs that have none resting.
func (e *Cascade) missingTargets(s *Session, c *Cycle) []Action {
	if c.Distance <= 0 {
		logger.Warnf("recovery: cascade %s has no distance, targets not recreated", c.ID)
		return nil
	}
	var acts []Action
	for _, leg := range types.Sides {
		if c.Filled[leg] <= 0 || c.live(targetRole(c, leg), leg) != nil {
			continue
		}
		level := CascadeTarget(leg, c.ReferencePrice(leg), c.Distance, e.tp.Multiplier, c.PositionCount, e.tp.IncrementPercent)
		logger.Warnf("recovery: recreating %s target at %.8g", leg, level)
		acts = append(acts, replaceTarget(s, c, targetRole(c, leg), leg, c.Filled[leg], level, e.tp.PriceOffset)...)
	}
	return acts
}
