package strategy

import (
	"fmt"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/types"
)

// Accumulator adds a same-size market order on every signal for a side and
// keeps one target at the venue's average entry for that side. Sides never
// interact.
type Accumulator struct {
	lifecycle
	cfg config.AccumulatorConfig
	tp  config.TakeProfitConfig
}

func NewAccumulator(cfg config.AccumulatorConfig, tp config.TakeProfitConfig) *Accumulator {
	return &Accumulator{
		lifecycle: lifecycle{variant: VariantAccumulator},
		cfg:       cfg,
		tp:        tp,
	}
}

// OnSignal accumulates into the open cycle for the side instead of
// rejecting, up to the configured count.
func (e *Accumulator) OnSignal(s *Session, sig types.Signal) ([]Action, error) {
	c := s.Cycle(sig.Direction)
	if !c.Open() {
		plan := s.PlanQuantity(sig.ReferencePrice * e.cfg.TPPercent)
		c = s.openCycle(e.variant, sig, plan)
	} else if c.State != StateActive {
		return nil, fmt.Errorf("%w: %s cycle %s is %s", ErrCycleNotActive, sig.Direction, c.ID, c.State)
	} else if c.Accumulations >= e.cfg.MaxAccumulations {
		return nil, ErrAccumulationCap
	}
	c.Accumulations++
	o := s.newOrder(c, orderSpec{
		role: RoleSignal, leg: sig.Direction, typ: exchange.OrderMarket,
		qty: c.Plan.Quantity, opening: true,
	})
	logger.Trade("accumulate", map[string]any{
		"cycle": c.ID, "side": sig.Direction.String(), "count": c.Accumulations,
		"qty": c.Plan.Quantity, "ref": sig.ReferencePrice,
	})
	return []Action{place(o)}, nil
}

func (e *Accumulator) OnFill(s *Session, c *Cycle, o *TrackedOrder) []Action {
	switch o.Role {
	case RoleSignal:
		c.SetEntry(o.FillPrice)
		c.addFill(o.PositionSide, o.FilledQty, o.FillPrice)
		c.OrderCount++
		c.PositionCount = c.Accumulations
		e.promote(c)
		return []Action{{Kind: ActionQueryPosition, Side: o.PositionSide, Reason: "average entry after accumulation"}}
	case RoleTPSignal:
		c.recordClose(o)
		acts := cancelAll(c, o, "side target reached")
		return append(acts, e.finish(s, c, "target filled")...)
	}
	return nil
}

// OnPosition places the target from the venue's volume-weighted entry.
func (e *Accumulator) OnPosition(s *Session, c *Cycle, pos types.PositionSnapshot) []Action {
	if !pos.Open() || pos.EntryPrice <= 0 {
		return nil
	}
	level := PercentTarget(pos.Side, pos.EntryPrice, e.cfg.TPPercent)
	logger.Infof("accumulator %s %s avg=%.8g qty=%.8g target=%.8g", c.ID, pos.Side, pos.EntryPrice, pos.Quantity, level)
	return replaceTarget(s, c, RoleTPSignal, pos.Side, pos.Quantity, level, e.tp.PriceOffset)
}

func (e *Accumulator) Recover(s *Session, snap exchange.Snapshot) []Action {
	var acts []Action
	for _, side := range types.Sides {
		c := rebuildSingle(s, e.variant, snap, side)
		if c == nil || c.live(RoleTPSignal, side) != nil {
			continue
		}
		acts = append(acts, e.OnPosition(s, c, snap.Position(side))...)
	}
	return acts
}
