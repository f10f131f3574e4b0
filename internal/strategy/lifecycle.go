package strategy

import (
	"math"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/types"
)

// lifecycle carries the behaviour shared by every variant. Engines embed it
// and override what differs.
type lifecycle struct {
	variant    Variant
	protective Role
	hedged     bool
}

func (l lifecycle) Variant() Variant { return l.variant }

func (l lifecycle) Scope(side types.Side) []types.Side {
	if l.hedged {
		return []types.Side{types.Long, types.Short}
	}
	return []types.Side{side}
}

func (l lifecycle) OnCandle(*Session, types.Side, []market.Candle) []Action { return nil }

func (l lifecycle) OnPosition(*Session, *Cycle, types.PositionSnapshot) []Action { return nil }

func (l lifecycle) OnAcknowledged(s *Session, c *Cycle, o *TrackedOrder) {
	l.promote(c)
}

// promote moves a cycle to ACTIVE once the entry has filled and its
// protective order is resting or filled.
func (l lifecycle) promote(c *Cycle) {
	if c.State != StateAwaitingProtection || (c.Filled[c.Side] <= 0 && c.EntryPrice <= 0) {
		return
	}
	if l.protective != "" {
		protected := false
		for _, o := range c.Orders {
			if o.Role == l.protective && (o.State == OrderOpen || o.State == OrderFilled) {
				protected = true
				break
			}
		}
		if !protected {
			return
		}
	}
	c.State = StateActive
	logger.Infof("cycle %s %s %s active entry=%.8g hedge=%.8g distance=%.8g",
		c.Variant, c.ID, c.Side, c.EntryPrice, c.HedgePrice, c.Distance)
}

func orderLog(c *Cycle, o *TrackedOrder) []any {
	return []any{
		"cycle", c.ID, "variant", c.Variant, "side", c.Side, "role", o.Role,
		"order_side", o.Side, "position_side", o.PositionSide, "type", o.Type,
		"qty", o.Quantity, "trigger", o.TriggerPrice, "limit", o.LimitPrice,
		"client_id", o.ClientID,
	}
}

// OnOrderFailed applies the error taxonomy: insufficient capital parks the
// cycle in WAITING_CAPITAL, anything else stops it. A cycle that never
// filled anything releases its slot straight away.
func (l lifecycle) OnOrderFailed(s *Session, c *Cycle, o *TrackedOrder, err error) []Action {
	return l.fail(s, c, o, err)
}

func (l lifecycle) fail(s *Session, c *Cycle, o *TrackedOrder, err error) []Action {
	o.State = OrderFailed
	log := logger.With(orderLog(c, o)...)
	if exchange.Classify(err) == exchange.ClassInsufficientCapital {
		log.Warn("order rejected for insufficient capital, waiting for capital", "error", err)
		c.State = StateWaitingCapital
	} else {
		log.Error("order abandoned, cycle stopped", "error", err)
		c.State = StateStopped
	}
	c.StopReason = err.Error()
	if c.hasFills() {
		return nil
	}
	acts := cancelAll(c, nil, "cycle released after failed entry")
	return append(acts, l.finish(s, c, "entry failed")...)
}

// finish releases the cycle slot. Cycles that traded emit a settlement so
// their realized income reaches the ledger.
func (l lifecycle) finish(s *Session, c *Cycle, reason string) []Action {
	prev := c.State
	c.State = StateInactive
	s.detach(c)
	logger.Trade("cycle_closed", map[string]any{
		"cycle":     c.ID,
		"variant":   string(c.Variant),
		"side":      c.Side.String(),
		"from":      string(prev),
		"reason":    reason,
		"orders":    c.OrderCount,
		"positions": c.PositionCount,
	})
	if !c.hasFills() {
		return nil
	}
	return []Action{{
		Kind: ActionSettle,
		Settlement: &Settlement{
			CycleID:   c.ID,
			Symbol:    s.Symbol,
			Variant:   c.Variant,
			Side:      c.Side,
			StartedAt: c.StartedAt,
			ClosedAt:  s.Now(),
			WorstCase: c.WorstCase(s.CloseWindow),
			Recovery:  c.Plan.Recovery,
			Reason:    reason,
		},
	}}
}

// Cleanup lists every live order; nothing is cancelled on shutdown.
func (l lifecycle) Cleanup(s *Session) []*TrackedOrder {
	unlock := s.Lock(types.Long, types.Short)
	defer unlock()
	var keep []*TrackedOrder
	for _, side := range types.Sides {
		c := s.Cycle(side)
		if !c.Open() {
			continue
		}
		for _, o := range c.LiveOrders() {
			logger.Infof("shutdown: preserving %s %s %s qty=%.8g trigger=%.8g id=%s",
				o.Role, o.Side, o.PositionSide, o.Quantity, o.TriggerPrice, o.OrderID)
			keep = append(keep, o)
		}
	}
	return keep
}

// cancelAll cancels every live order of c except keep.
func cancelAll(c *Cycle, keep *TrackedOrder, reason string) []Action {
	var acts []Action
	for _, o := range c.LiveOrders() {
		if o == keep || o.CancelRequested {
			continue
		}
		acts = append(acts, cancel(o, reason))
	}
	return acts
}

// replaceTarget cancels the current target on leg, if any, and places a new
// one at level unless the resting one already matches.
func replaceTarget(s *Session, c *Cycle, role Role, leg types.Side, qty, level, offset float64) []Action {
	f := s.Filters()
	qty = f.FloorQty(qty)
	if qty <= 0 {
		return nil
	}
	level = f.RoundPrice(level)
	var acts []Action
	if prev := c.live(role, leg); prev != nil {
		if prev.LimitPrice == level && prev.Quantity == qty {
			return nil
		}
		acts = append(acts, cancel(prev, "target replaced"))
	}
	o := s.newOrder(c, orderSpec{
		role:    role,
		leg:     leg,
		typ:     exchange.OrderTakeProfit,
		qty:     qty,
		trigger: TargetTrigger(leg, level, offset),
		limit:   level,
	})
	return append(acts, place(o))
}

// closeLeg closes whatever the cycle still holds on leg at market.
func closeLeg(s *Session, c *Cycle, leg types.Side) []Action {
	qty := c.Filled[leg]
	if qty <= 0 {
		return nil
	}
	o := s.newOrder(c, orderSpec{role: RoleClose, leg: leg, typ: exchange.OrderMarket, qty: qty})
	return []Action{place(o)}
}

// fillOrder books the fill fields reported by the stream.
func fillOrder(o *TrackedOrder, r exchange.ExecutionReport) {
	o.State = OrderFilled
	o.FilledQty = r.CumulativeFilledQty
	if o.FilledQty <= 0 {
		o.FilledQty = o.Quantity
	}
	o.FillPrice = r.FillPrice()
	if o.FillPrice <= 0 {
		o.FillPrice = math.Max(o.LimitPrice, o.TriggerPrice)
	}
	o.FilledAt = r.EventTime
}

// ApplyFill marks o filled from a stream report. It is exported for the
// router, which owns consumption.
func ApplyFill(o *TrackedOrder, r exchange.ExecutionReport) { fillOrder(o, r) }

// openHedged places the market entry and the opposite stop that both hedges
// the entry and sets the distance used by every target.
func openHedged(s *Session, v Variant, sig types.Signal, lookback int, offset, multiplier float64) (*Cycle, []Action, error) {
	for _, side := range types.Sides {
		if s.Cycle(side).Open() {
			return nil, nil, ErrCycleActive
		}
	}
	level, ok := s.protectiveLevel(sig.Direction, lookback, offset)
	if !ok {
		return nil, nil, ErrInsufficientHistory
	}
	dist := math.Abs(sig.ReferencePrice - level)
	if dist == 0 {
		return nil, nil, ErrZeroDistance
	}
	plan := s.PlanQuantity(dist)
	c := s.openCycle(v, sig, plan)
	c.SetHedge(level)
	c.Distance = dist

	entry := s.newOrder(c, orderSpec{
		role: RoleSignal, leg: sig.Direction, typ: exchange.OrderMarket,
		qty: plan.Quantity, opening: true,
	})
	hedge := s.newOrder(c, orderSpec{
		role: RoleHedge, leg: sig.Direction.Opposite(), typ: exchange.OrderStopMarket,
		qty: plan.Quantity * multiplier, trigger: level, opening: true,
	})
	logger.Trade("cycle_opened", map[string]any{
		"cycle":    c.ID,
		"variant":  string(v),
		"side":     sig.Direction.String(),
		"ref":      sig.ReferencePrice,
		"hedge":    level,
		"qty":      plan.Quantity,
		"recovery": plan.Recovery,
	})
	return c, []Action{place(entry), place(hedge)}, nil
}
