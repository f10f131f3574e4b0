package trader

import (
	"fmt"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/types"
)

// route hands one execution report to the engine that owns the order.
// A filled order is marked consumed under its side lock before dispatch,
// so a repeated report for the same order is a no-op. Fills of orders
// nobody tracks trigger a resync instead of being dropped.
func (t *Trader) route(rep exchange.ExecutionReport) {
	s := t.session
	o := s.Lookup(rep.OrderID, rep.ClientOrderID)
	if o == nil && s.WasConsumed(rep.OrderID, rep.ClientOrderID) {
		logger.Debugf("Router: duplicate %s report for consumed order %s", rep.Status, rep.ClientOrderID)
		return
	}
	if o == nil {
		if rep.Status == exchange.StatusFilled || rep.Status == exchange.StatusPartiallyFilled {
			logger.Warnf("Router: %s fill for untracked order %s (%s %s qty=%g), reconciling",
				rep.Status, rep.OrderID, rep.Side, rep.PositionSide, rep.CumulativeFilledQty)
			t.requestResync("untracked fill " + rep.OrderID)
		}
		return
	}

	var acts []strategy.Action
	unlock := s.Lock(t.engine.Scope(o.Owner)...)
	c := s.Cycle(o.Owner)
	if c == nil || c.ID != o.CycleID {
		unlock()
		t.orphaned(o, rep)
		return
	}
	switch rep.Status {
	case exchange.StatusNew:
		if o.State == strategy.OrderPending {
			s.Acknowledge(o, rep.OrderID)
			if o.CancelRequested {
				t.recancel(o)
				break
			}
			t.engine.OnAcknowledged(s, c, o)
		}
	case exchange.StatusPartiallyFilled:
		o.FilledQty = rep.CumulativeFilledQty
		logger.Debugf("Router: %s %s partially filled %g/%g", o.Role, o.ClientID, rep.CumulativeFilledQty, o.Quantity)
	case exchange.StatusFilled:
		if o.Consumed {
			break
		}
		o.Consumed = true
		s.Acknowledge(o, rep.OrderID)
		strategy.ApplyFill(o, rep)
		logger.Infof("Router: %s %s %s filled qty=%g price=%g cycle=%s",
			o.Role, o.Side, o.PositionSide, o.FilledQty, o.FillPrice, o.CycleID)
		acts = t.engine.OnFill(s, c, o)
		s.Retire(o)
	case exchange.StatusCanceled, exchange.StatusExpired, exchange.StatusRejected:
		if !o.Live() || o.Consumed {
			break
		}
		if o.CancelRequested {
			o.State = strategy.OrderCanceled
			s.Retire(o)
			break
		}
		if rep.Status == exchange.StatusCanceled {
			// Cancelled outside the bot. The cycle keeps running without it.
			logger.Errorf("Router: %s order %s of cycle %s was cancelled externally", o.Role, o.OrderID, c.ID)
			o.State = strategy.OrderCanceled
			s.Retire(o)
			break
		}
		o.Consumed = true
		err := &exchange.OrderError{Class: exchange.ClassPermanent, Message: fmt.Sprintf("order %s by venue", rep.Status)}
		acts = t.engine.OnOrderFailed(s, c, o, err)
		s.Retire(o)
	}
	t.dispatch(acts)
	unlock()
}

// orphaned handles reports for orders whose cycle is gone. A late fill
// means the venue position no longer matches what the bot believes.
func (t *Trader) orphaned(o *strategy.TrackedOrder, rep exchange.ExecutionReport) {
	switch rep.Status {
	case exchange.StatusFilled:
		logger.Warnf("Router: %s %s filled after cycle %s closed, reconciling", o.Role, o.ClientID, o.CycleID)
		t.session.Retire(o)
		t.requestResync("fill after cycle close")
	case exchange.StatusCanceled, exchange.StatusExpired, exchange.StatusRejected:
		t.session.Retire(o)
	}
}

// handleOrderResult applies the outcome of a placement.
func (t *Trader) handleOrderResult(res OrderResult) {
	s := t.session
	o := res.Order
	var acts []strategy.Action
	unlock := s.Lock(t.engine.Scope(o.Owner)...)
	c := s.Cycle(o.Owner)
	current := c != nil && c.ID == o.CycleID
	switch {
	case res.Err != nil:
		if !o.Live() || o.Consumed {
			break
		}
		if !current || o.CancelRequested {
			o.State = strategy.OrderFailed
			s.Retire(o)
			break
		}
		acts = t.engine.OnOrderFailed(s, c, o, res.Err)
		s.Retire(o)
	case o.Live():
		wasPending := o.State == strategy.OrderPending
		s.Acknowledge(o, res.Ack.OrderID)
		switch {
		case o.CancelRequested:
			// The first cancel may have reached the venue before the order did.
			if wasPending && res.Ack.Status != exchange.StatusFilled {
				t.recancel(o)
			}
		case current && o.State == strategy.OrderOpen:
			t.engine.OnAcknowledged(s, c, o)
		}
	}
	t.dispatch(acts)
	unlock()

	if res.Err == nil && res.Ack.Status == exchange.StatusFilled && res.Ack.ExecutedQty > 0 {
		t.route(exchange.ExecutionReport{
			Symbol:              s.Symbol,
			OrderID:             res.Ack.OrderID,
			ClientOrderID:       o.ClientID,
			Side:                o.Side,
			PositionSide:        o.PositionSide,
			OrderType:           o.Type,
			Status:              exchange.StatusFilled,
			ExecutionType:       "ACK",
			CumulativeFilledQty: res.Ack.ExecutedQty,
			AveragePrice:        res.Ack.AvgPrice,
			EventTime:           t.now(),
		})
	}
}

// recancel repeats the cancel of an order whose placement was confirmed
// after its cancel had been sent.
func (t *Trader) recancel(o *strategy.TrackedOrder) {
	logger.Infof("Router: %s %s confirmed after its cancel, cancelling again", o.Role, o.ClientID)
	t.cancelAsync(o, "placement confirmed after cancel")
}

func (t *Trader) applyAccountUpdate(upd exchange.AccountUpdate) {
	s := t.session
	if bal, ok := upd.Balances[s.Asset]; ok {
		acct := s.Account()
		acct.Asset = s.Asset
		acct.Balance = bal
		acct.UpdatedAt = upd.EventTime
		s.SetAccount(acct)
	}
	for _, p := range upd.Positions {
		if p.Symbol != "" && p.Symbol != s.Symbol {
			continue
		}
		s.SetPosition(p)
	}
}

// handlePosition feeds a queried position back to the engine.
func (t *Trader) handlePosition(res PositionResult) error {
	if res.Err != nil {
		return fmt.Errorf("position query for %s: %w", res.Side, res.Err)
	}
	s := t.session
	pos := types.PositionSnapshot{Symbol: s.Symbol, Side: res.Side}
	for _, p := range res.Positions {
		s.SetPosition(p)
		if p.Side == res.Side {
			pos = p
		}
	}
	unlock := s.Lock(t.engine.Scope(res.Side)...)
	var acts []strategy.Action
	if c := s.Cycle(res.Side); c.Open() {
		acts = t.engine.OnPosition(s, c, pos)
	}
	t.dispatch(acts)
	unlock()
	return nil
}
