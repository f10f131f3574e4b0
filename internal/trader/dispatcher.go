package trader

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/ledger"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/pkg/retry"
	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/types"
)

const callTimeout = time.Minute

// dispatch starts the venue calls requested by an engine. It must be called
// while the side locks of the producing call are still held: everything an
// action needs is copied before the goroutines start.
func (t *Trader) dispatch(acts []strategy.Action) {
	for _, a := range acts {
		switch a.Kind {
		case strategy.ActionPlace:
			t.placeAsync(a.Order)
		case strategy.ActionCancel:
			t.cancelAsync(a.Order, a.Reason)
		case strategy.ActionQueryPosition:
			t.queryPositionAsync(a.Side)
		case strategy.ActionSettle:
			if a.Settlement != nil {
				st := *a.Settlement
				t.async(func(ctx context.Context) { t.settle(ctx, st) })
			}
		case strategy.ActionResync:
			t.requestResync(a.Reason)
		}
	}
}

// async runs fn detached from the event loops. In-flight calls are awaited
// on shutdown, so they get their own deadline rather than the run context.
func (t *Trader) async(fn func(ctx context.Context)) {
	t.inflight.Add(1)
	t.inflightCount.Add(1)
	go func() {
		defer t.inflight.Done()
		defer t.inflightCount.Add(-1)
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (t *Trader) policyFor(o *strategy.TrackedOrder) retry.Policy {
	if o.Retry == nil {
		return t.orderRetry
	}
	p := retry.Fixed(o.Retry.Attempts, o.Retry.Delay, exchange.Retryable)
	p.Sleep = t.orderRetry.Sleep
	return p
}

func (t *Trader) placeAsync(o *strategy.TrackedOrder) {
	req := o.Request(t.session.Symbol)
	policy := t.policyFor(o)
	cycleID, owner, role := o.CycleID, o.Owner, o.Role
	t.async(func(ctx context.Context) {
		t.record(journal.KindOrderRequest, req, func(e *journal.Entry) {
			e.CycleID, e.ClientID = cycleID, req.ClientOrderID
		})
		var ack exchange.OrderAck
		attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
			var err error
			ack, err = t.gateway.PlaceOrder(ctx, req)
			if err != nil && exchange.Retryable(err) {
				logger.Warnf("Dispatcher: %s %s attempt %d failed: %v", role, req.ClientOrderID, attempt, err)
			}
			return err
		})
		if err != nil {
			logger.With(
				"cycle", cycleID, "owner", owner, "role", role,
				"side", req.Side, "position_side", req.PositionSide, "type", req.Type,
				"qty", req.Quantity, "stop", req.StopPrice, "price", req.Price,
				"client_id", req.ClientOrderID, "attempts", attempts, "class", exchange.Classify(err).String(),
			).Error("order placement failed", "error", err)
		}
		t.record(journal.KindOrderResult, ack, func(e *journal.Entry) {
			e.CycleID, e.ClientID, e.OrderID = cycleID, req.ClientOrderID, ack.OrderID
			if err != nil {
				e.Error = err.Error()
			}
		})
		t.post(EventEnvelope{Type: EvtOrderResult, Result: &OrderResult{Order: o, Ack: ack, Err: err, Attempts: attempts}})
	})
}

func (t *Trader) cancelAsync(o *strategy.TrackedOrder, reason string) {
	sym := t.session.Symbol
	orderID, clientID, cycleID, role := o.OrderID, o.ClientID, o.CycleID, o.Role
	inFlight := o.State == strategy.OrderPending
	policy := t.orderRetry
	t.async(func(ctx context.Context) {
		_, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
			return t.gateway.CancelOrder(ctx, sym, orderID, clientID)
		})
		switch {
		case err == nil:
			logger.Infof("Dispatcher: cancelled %s %s (%s)", role, clientID, reason)
		case errors.Is(err, exchange.ErrUnknownOrder) && inFlight:
			logger.Infof("Dispatcher: %s %s not on the venue yet, cancel repeats once placement is confirmed", role, clientID)
		case errors.Is(err, exchange.ErrUnknownOrder):
			logger.Debugf("Dispatcher: %s %s already gone on the venue", role, clientID)
			err = nil
		default:
			logger.Errorf("Dispatcher: cancel %s %s of cycle %s failed: %v", role, clientID, cycleID, err)
		}
		t.record(journal.KindCancel, map[string]string{"reason": reason, "role": string(role)}, func(e *journal.Entry) {
			e.CycleID, e.ClientID, e.OrderID = cycleID, clientID, orderID
			if err != nil {
				e.Error = err.Error()
			}
		})
	})
}

func (t *Trader) queryPositionAsync(side types.Side) {
	sym := t.session.Symbol
	policy := t.orderRetry
	t.async(func(ctx context.Context) {
		var positions []types.PositionSnapshot
		_, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			positions, err = t.gateway.GetPosition(ctx, sym)
			return err
		})
		t.post(EventEnvelope{Type: EvtPosition, Position: &PositionResult{Side: side, Positions: positions, Err: err}})
	})
}

// settled is the journal and history payload of a closed cycle.
type settled struct {
	strategy.Settlement
	PnL         float64 `json:"pnl"`
	Incomes     int     `json:"incomes"`
	Outstanding float64 `json:"outstanding"`
	Error       string  `json:"error,omitempty"`
}

// settle books a closed cycle: realized income since the cycle started, the
// loss-recovery ledger, and the cycle history.
func (t *Trader) settle(ctx context.Context, st strategy.Settlement) {
	if t.settleDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.settleDelay):
		}
	}
	var items []exchange.Income
	_, err := t.settleRetry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		items, err = t.gateway.GetRealizedIncome(ctx, st.Symbol, st.StartedAt)
		return err
	})
	out := settled{Settlement: st, Incomes: len(items)}
	if err != nil {
		out.Error = err.Error()
		logger.Errorf("Settle: income for cycle %s unavailable, ledger untouched: %v", st.CycleID, err)
	} else {
		out.PnL = exchange.SumIncome(items, st.StartedAt)
	}
	logger.Trade("cycle_settled", map[string]any{
		"cycle":      st.CycleID,
		"variant":    string(st.Variant),
		"side":       st.Side.String(),
		"pnl":        out.PnL,
		"worst_case": st.WorstCase,
		"recovery":   st.Recovery,
		"reason":     st.Reason,
	})

	if t.ledger != nil && err == nil {
		rec, lerr := t.ledger.Apply(ctx, ledger.Outcome{
			Symbol:    st.Symbol,
			CycleID:   st.CycleID,
			WorstCase: st.WorstCase,
			Recovery:  st.Recovery,
			PnL:       out.PnL,
			Balance:   t.session.Account().Balance,
		})
		if lerr != nil {
			logger.Errorf("Settle: ledger update for cycle %s failed: %v", st.CycleID, lerr)
		}
		out.Outstanding = rec.Outstanding
	}

	if t.history != nil {
		details, _ := json.Marshal(out)
		if herr := t.history.SaveCycle(ctx, store.CycleRecord{
			CycleID:   st.CycleID,
			Symbol:    st.Symbol,
			Variant:   string(st.Variant),
			Side:      st.Side.String(),
			Reason:    st.Reason,
			WorstCase: st.WorstCase,
			Recovery:  st.Recovery,
			PnL:       out.PnL,
			StartedAt: st.StartedAt,
			ClosedAt:  st.ClosedAt,
			Details:   details,
		}); herr != nil {
			logger.Warnf("Settle: cycle history for %s not saved: %v", st.CycleID, herr)
		}
	}
	t.record(journal.KindCycle, out, func(e *journal.Entry) {
		e.CycleID = st.CycleID
		e.Error = out.Error
	})
}

// requestResync loads a fresh venue snapshot in the background; only one
// reconciliation runs at a time.
func (t *Trader) requestResync(reason string) {
	if !t.resyncing.CompareAndSwap(false, true) {
		return
	}
	logger.Infof("Trader: reconciling with the venue (%s)", reason)
	sym, asset := t.session.Symbol, t.session.Asset
	policy := t.syncRetry
	t.async(func(ctx context.Context) {
		var snap exchange.Snapshot
		_, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			snap, err = exchange.LoadSnapshot(ctx, t.gateway, sym, asset)
			return err
		})
		t.post(EventEnvelope{Type: EvtSnapshot, Snapshot: &SnapshotResult{Reason: reason, Snapshot: snap, Err: err}})
	})
}

func (t *Trader) refreshAccount(ctx context.Context) {
	acct, err := t.gateway.GetBalance(ctx, t.session.Asset)
	if err != nil {
		logger.Warnf("Trader: balance refresh failed: %v", err)
		return
	}
	t.session.SetAccount(acct)
}

// queryOrderAsync asks the venue for the final state of an order and feeds
// it to the router as a regular report.
func (t *Trader) queryOrderAsync(so staleOrder) {
	sym := t.session.Symbol
	policy := t.orderRetry
	t.async(func(ctx context.Context) {
		var rep exchange.ExecutionReport
		_, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			rep, err = t.gateway.QueryOrder(ctx, sym, so.orderID, so.clientID)
			return err
		})
		if err != nil {
			logger.Warnf("Trader: order %s state unknown after reconciliation: %v", so.clientID, err)
			return
		}
		if rep.ClientOrderID == "" {
			rep.ClientOrderID = so.clientID
		}
		t.post(EventEnvelope{Type: EvtExecution, Execution: &rep})
	})
}
