package trader

import (
	"errors"
	"fmt"

	"github.com/nirre55/bot-final/internal/analysis/indicator"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/types"
)

// ErrOutsideTradingHours and ErrBlocked are the reasons a confirmed signal
// is turned away before it reaches the engine.
var (
	ErrOutsideTradingHours = errors.New("signal outside trading hours")
	ErrBlocked             = errors.New("trader blocked until reconciliation succeeds")
)

// handleCandle stores a closed candle, lets engines watch open cycles and
// advances the signal machine.
func (t *Trader) handleCandle(ev market.CandleEvent) {
	if !ev.Candle.Closed {
		return
	}
	s := t.session
	if !s.Series().Append(ev.Candle) {
		logger.Debugf("Trader: ignoring stale candle %d", ev.Candle.OpenTime)
		return
	}
	t.lastCandle.Store(ev.Candle.CloseTime)
	if t.blocked.Load() {
		t.requestResync("blocked, retrying on candle close")
	}
	candles := s.Series().All()

	for _, side := range types.Sides {
		unlock := s.Lock(t.engine.Scope(side)...)
		acts := t.engine.OnCandle(s, side, candles)
		t.dispatch(acts)
		unlock()
	}

	snap, err := indicator.Compute(candles, t.indicator)
	if err != nil {
		logger.Debugf("Trader: indicators not ready: %v", err)
		return
	}
	sig, err := t.signals.Advance(snap, ev.Candle.CloseAt())
	t.signalState.Store(t.signals.State())
	if err != nil {
		logger.Warnf("Trader: signal machine: %v", err)
		return
	}
	if sig == nil {
		return
	}
	if err := t.OnSignal(*sig); err != nil {
		logger.Infof("Trader: %s signal at %.8g not taken: %v", sig.Direction, sig.ReferencePrice, err)
	}
}

// OnSignal gates a confirmed signal on trading hours and the blocked state,
// then hands it to the engine under the locks of its scope.
func (t *Trader) OnSignal(sig types.Signal) error {
	if hours := t.tradingHours(); !hours.Open(t.now()) {
		t.record(journal.KindCycle, map[string]any{"rejected": sig, "reason": "trading_hours"}, nil)
		return fmt.Errorf("%w (%s)", ErrOutsideTradingHours, hours)
	}
	if t.blocked.Load() {
		return ErrBlocked
	}
	s := t.session
	unlock := s.Lock(t.engine.Scope(sig.Direction)...)
	defer unlock()
	acts, err := t.engine.OnSignal(s, sig)
	if err != nil {
		return err
	}
	logger.Infof("Trader: %s signal %s accepted by %s at %.8g", sig.Direction, sig.ID, t.engine.Variant(), sig.ReferencePrice)
	t.dispatch(acts)
	return nil
}

func (t *Trader) handleSnapshot(res SnapshotResult) error {
	t.resyncing.Store(false)
	if res.Err != nil {
		t.block(fmt.Sprintf("reconciliation (%s) failed: %v", res.Reason, res.Err))
		return res.Err
	}
	t.applySnapshot(res)
	return nil
}

type staleOrder struct {
	orderID, clientID string
}

// applySnapshot refreshes account and positions, lets the engine rebuild
// empty slots from the venue and queries tracked orders the venue no
// longer lists, since their final report may have been missed.
func (t *Trader) applySnapshot(res SnapshotResult) {
	s := t.session
	snap := res.Snapshot
	if snap.Account.Asset != "" {
		s.SetAccount(snap.Account)
	}
	for _, side := range types.Sides {
		p := snap.Position(side)
		p.Symbol = s.Symbol
		s.SetPosition(p)
	}

	resting := make(map[string]bool, 2*len(snap.OpenOrders))
	for _, oo := range snap.OpenOrders {
		resting[oo.OrderID] = true
		resting[oo.ClientOrderID] = true
	}
	var stale []staleOrder
	unlock := s.Lock(types.Long, types.Short)
	acts := t.engine.Recover(s, snap)
	for _, side := range types.Sides {
		c := s.Cycle(side)
		if !c.Open() {
			continue
		}
		for _, o := range c.LiveOrders() {
			if o.State != strategy.OrderOpen || resting[o.OrderID] || resting[o.ClientID] {
				continue
			}
			stale = append(stale, staleOrder{orderID: o.OrderID, clientID: o.ClientID})
		}
	}
	t.dispatch(acts)
	unlock()

	for _, so := range stale {
		t.queryOrderAsync(so)
	}
	t.unblock()
	logger.Infof("Trader: reconciled (%s): %d positions, %d open orders, %d orders to verify",
		res.Reason, len(snap.Positions), len(snap.OpenOrders), len(stale))
}
