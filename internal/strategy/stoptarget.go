package strategy

import (
	"github.com/nirre55/bot-final/internal/analysis/indicator"
	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/types"
)

// StopTarget holds at most one position per side, protected by a stop below
// or above the recent extreme. The exit is either a fixed target or, with
// dynamic exit, a market close when the oscillator reaches the far zone.
type StopTarget struct {
	lifecycle
	cfg config.StopTargetConfig
	tp  config.TakeProfitConfig
}

func NewStopTarget(cfg config.StopTargetConfig, tp config.TakeProfitConfig) *StopTarget {
	return &StopTarget{
		lifecycle: lifecycle{variant: VariantStopTarget, protective: RoleSL},
		cfg:       cfg,
		tp:        tp,
	}
}

func (e *StopTarget) OnSignal(s *Session, sig types.Signal) ([]Action, error) {
	side := sig.Direction
	if s.Cycle(side).Open() || s.Position(side).Open() {
		return nil, ErrPositionExists
	}
	stop, ok := s.protectiveLevel(side, e.cfg.SLLookback, e.cfg.SLOffsetPercent)
	if !ok {
		return nil, ErrInsufficientHistory
	}
	dist := sig.ReferencePrice - stop
	if side == types.Short {
		dist = -dist
	}
	if dist <= 0 {
		return nil, ErrZeroDistance
	}
	c := s.openCycle(e.variant, sig, s.PlanQuantity(dist))
	c.StopPrice = stop
	c.Distance = dist
	o := s.newOrder(c, orderSpec{
		role: RoleSignal, leg: side, typ: exchange.OrderMarket,
		qty: c.Plan.Quantity, opening: true,
	})
	logger.Trade("cycle_opened", map[string]any{
		"cycle": c.ID, "variant": string(e.variant), "side": side.String(),
		"ref": sig.ReferencePrice, "stop": stop, "qty": c.Plan.Quantity,
	})
	return []Action{place(o)}, nil
}

func (e *StopTarget) OnFill(s *Session, c *Cycle, o *TrackedOrder) []Action {
	leg := c.Side
	switch o.Role {
	case RoleSignal:
		c.SetEntry(o.FillPrice)
		c.addFill(leg, o.FilledQty, o.FillPrice)
		c.OrderCount++
		sl := s.newOrder(c, orderSpec{
			role: RoleSL, leg: leg, typ: exchange.OrderStopMarket,
			qty: c.Filled[leg], trigger: c.StopPrice,
		})
		sl.Retry = &RetryOverride{Attempts: e.cfg.SLRetryAttempts, Delay: e.cfg.SLRetryDelay}
		acts := []Action{place(sl)}
		if !e.cfg.DynamicExit {
			level := PercentTarget(leg, c.EntryPrice, e.cfg.TPPercent)
			acts = append(acts, replaceTarget(s, c, RoleTPSignal, leg, c.Filled[leg], level, e.tp.PriceOffset)...)
		}
		return acts
	case RoleSL, RoleTPSignal, RoleClose:
		c.recordClose(o)
		var acts []Action
		if sib := e.sibling(c, o); sib != nil {
			acts = append(acts, cancel(sib, string(o.Role)+" filled"))
		}
		return append(acts, e.finish(s, c, string(o.Role)+" filled")...)
	}
	return nil
}

// sibling is the one order on the same side that must go when o fills.
func (e *StopTarget) sibling(c *Cycle, o *TrackedOrder) *TrackedOrder {
	if o.Role == RoleSL {
		return c.live(RoleTPSignal, c.Side)
	}
	return c.live(RoleSL, c.Side)
}

// OnCandle runs the dynamic exit check on every closed candle.
func (e *StopTarget) OnCandle(s *Session, side types.Side, candles []market.Candle) []Action {
	if !e.cfg.DynamicExit {
		return nil
	}
	c := s.Cycle(side)
	if !c.Open() || c.Filled[side] <= 0 || c.live(RoleClose, side) != nil {
		return nil
	}
	closes := make([]float64, len(candles))
	for i, k := range candles {
		closes[i] = k.Close
	}
	rsi, ok := indicator.RSI(closes, e.cfg.ExitPeriod)
	if !ok {
		return nil
	}
	hit := (side == types.Long && rsi >= e.cfg.ExitOverbought) || (side == types.Short && rsi <= e.cfg.ExitOversold)
	if !hit {
		return nil
	}
	logger.Infof("stop_target %s dynamic exit on %s rsi(%d)=%.2f", c.ID, side, e.cfg.ExitPeriod, rsi)
	return closeLeg(s, c, side)
}

func (e *StopTarget) Recover(s *Session, snap exchange.Snapshot) []Action {
	var acts []Action
	for _, side := range types.Sides {
		c := rebuildSingle(s, e.variant, snap, side)
		if c == nil || e.cfg.DynamicExit || c.live(RoleTPSignal, side) != nil {
			continue
		}
		level := PercentTarget(side, c.EntryPrice, e.cfg.TPPercent)
		logger.Warnf("recovery: recreating %s target at %.8g", side, level)
		acts = append(acts, replaceTarget(s, c, RoleTPSignal, side, c.Filled[side], level, e.tp.PriceOffset)...)
	}
	return acts
}
