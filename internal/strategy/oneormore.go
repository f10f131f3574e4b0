package strategy

import (
	"math"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/types"
)

// OneOrMore opens with a one-risk-unit target on the entry leg. Once the
// hedge fills the entry target is pulled in and a wider target is set on the
// hedge leg; whichever fires first leaves the other leg on a breakeven stop.
type OneOrMore struct {
	lifecycle
	hedge config.HedgeConfig
	cfg   config.OneOrMoreConfig
	tp    config.TakeProfitConfig
}

func NewOneOrMore(h config.HedgeConfig, cfg config.OneOrMoreConfig, tp config.TakeProfitConfig) *OneOrMore {
	return &OneOrMore{
		lifecycle: lifecycle{variant: VariantOneOrMore, protective: RoleHedge, hedged: true},
		hedge:     h,
		cfg:       cfg,
		tp:        tp,
	}
}

func (e *OneOrMore) offsets() TargetOffsets {
	return TargetOffsets{
		SafetyPercent:        e.cfg.TPSafetyOffsetPercent,
		MinDistancePercent:   e.cfg.MinDistancePercent,
		SmallDistancePercent: e.cfg.SmallDistanceOffsetPercent,
	}
}

func (e *OneOrMore) OnSignal(s *Session, sig types.Signal) ([]Action, error) {
	_, acts, err := openHedged(s, e.variant, sig, e.hedge.Lookback, e.hedge.OffsetPercent, e.hedge.QuantityMultiplier)
	return acts, err
}

func (e *OneOrMore) OnFill(s *Session, c *Cycle, o *TrackedOrder) []Action {
	switch o.Role {
	case RoleSignal:
		c.SetEntry(o.FillPrice)
		c.Distance = math.Abs(c.EntryPrice - c.HedgePrice)
		c.addFill(o.PositionSide, o.FilledQty, o.FillPrice)
		c.OrderCount++
		level := InitialRRTarget(c.Side, c.EntryPrice, c.Distance, e.offsets())
		acts := replaceTarget(s, c, RoleTPSignal, c.Side, c.Filled[c.Side], level, e.tp.PriceOffset)
		e.promote(c)
		return acts
	case RoleHedge:
		c.ProtectionFilled = true
		c.addFill(o.PositionSide, o.FilledQty, o.FillPrice)
		c.OrderCount++
		e.promote(c)
		return e.postHedgeTargets(s, c)
	case RoleTPSignal, RoleTPHedge:
		c.recordClose(o)
		logger.Trade("target_filled", map[string]any{
			"cycle": c.ID, "role": string(o.Role), "leg": o.PositionSide.String(),
			"price": o.FillPrice, "qty": o.FilledQty, "hedged": c.ProtectionFilled,
		})
		if !c.ProtectionFilled {
			acts := cancelAll(c, o, "entry target reached before hedge")
			return append(acts, e.finish(s, c, "entry target filled")...)
		}
		var acts []Action
		if sib := c.live(siblingTarget(o.Role), o.PositionSide.Opposite()); sib != nil {
			acts = append(acts, cancel(sib, "sibling target filled"))
		}
		return append(acts, e.crossStop(s, c, o)...)
	case RoleCrossStop, RoleClose:
		c.recordClose(o)
		if c.Filled[types.Long] <= 0 && c.Filled[types.Short] <= 0 {
			acts := cancelAll(c, nil, "cycle closed")
			return append(acts, e.finish(s, c, "remaining leg closed")...)
		}
	}
	return nil
}

func siblingTarget(r Role) Role {
	if r == RoleTPSignal {
		return RoleTPHedge
	}
	return RoleTPSignal
}

// postHedgeTargets replaces the entry target with the closer one and adds the
// wider one on the hedge leg.
func (e *OneOrMore) postHedgeTargets(s *Session, c *Cycle) []Action {
	if c.Distance <= 0 || c.EntryPrice <= 0 {
		logger.Errorf("one_or_more %s hedge filled without entry reference", c.ID)
		return nil
	}
	hedgeLeg := c.Side.Opposite()
	entryTP := RRTarget(c.Side, c.EntryPrice, c.Distance, e.cfg.PostHedgeEntryRR)
	hedgeTP := RRTarget(hedgeLeg, c.HedgePrice, c.Distance, e.cfg.PostHedgeHedgeRR)
	acts := replaceTarget(s, c, RoleTPSignal, c.Side, c.Filled[c.Side], entryTP, e.tp.PriceOffset)
	return append(acts, replaceTarget(s, c, RoleTPHedge, hedgeLeg, c.Filled[hedgeLeg], hedgeTP, e.tp.PriceOffset)...)
}

// crossStop protects the remaining leg at the price where the cycle nets
// zero. When that price is already through the market the leg is closed.
func (e *OneOrMore) crossStop(s *Session, c *Cycle, filled *TrackedOrder) []Action {
	leg := filled.PositionSide.Opposite()
	qty := c.Filled[leg]
	if qty <= 0 {
		return e.finish(s, c, "target filled, nothing left")
	}
	realized := LegPnL(filled.PositionSide, c.AvgFill[filled.PositionSide], filled.FillPrice, filled.FilledQty)
	level := BreakevenStop(leg, c.AvgFill[leg], qty, realized)
	if stopWouldTrigger(leg, level, filled.FillPrice) {
		logger.Warnf("one_or_more %s breakeven %.8g already crossed at %.8g, closing %s at market",
			c.ID, level, filled.FillPrice, leg)
		return closeLeg(s, c, leg)
	}
	o := s.newOrder(c, orderSpec{
		role: RoleCrossStop, leg: leg, typ: exchange.OrderStopMarket,
		qty: qty, trigger: level,
	})
	return []Action{place(o)}
}

func (e *OneOrMore) Recover(s *Session, snap exchange.Snapshot) []Action {
	c := rebuildHedged(s, e.variant, snap, e.protective)
	if c == nil {
		return nil
	}
	if c.Distance <= 0 {
		logger.Warnf("recovery: one_or_more %s has no distance, targets not recreated", c.ID)
		return nil
	}
	hedgeLeg := c.Side.Opposite()
	if c.live(RoleCrossStop, types.Long) != nil || c.live(RoleCrossStop, types.Short) != nil {
		return nil
	}
	var acts []Action
	if !c.ProtectionFilled {
		if c.live(RoleTPSignal, c.Side) == nil {
			level := InitialRRTarget(c.Side, c.EntryPrice, c.Distance, e.offsets())
			acts = append(acts, replaceTarget(s, c, RoleTPSignal, c.Side, c.Filled[c.Side], level, e.tp.PriceOffset)...)
		}
		return acts
	}
	if c.live(RoleTPSignal, c.Side) == nil {
		level := RRTarget(c.Side, c.EntryPrice, c.Distance, e.cfg.PostHedgeEntryRR)
		acts = append(acts, replaceTarget(s, c, RoleTPSignal, c.Side, c.Filled[c.Side], level, e.tp.PriceOffset)...)
	}
	if c.live(RoleTPHedge, hedgeLeg) == nil {
		level := RRTarget(hedgeLeg, c.HedgePrice, c.Distance, e.cfg.PostHedgeHedgeRR)
		acts = append(acts, replaceTarget(s, c, RoleTPHedge, hedgeLeg, c.Filled[hedgeLeg], level, e.tp.PriceOffset)...)
	}
	return acts
}
