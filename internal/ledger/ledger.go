// Package ledger tracks losses from worst-case cycles and sizes later
// cycles to win them back.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/store"
)

// ErrBalanceBelowMax is returned by Rebase when the balance has not grown.
var ErrBalanceBelowMax = errors.New("balance is not above the recorded maximum")

// Outcome is what a closed cycle contributes to the ledger.
type Outcome struct {
	Symbol    string
	CycleID   string
	WorstCase bool
	Recovery  bool
	PnL       float64
	Balance   float64
}

// Ledger serializes every read-modify-write of the persisted record.
type Ledger struct {
	mu      sync.Mutex
	store   store.LedgerStore
	timeout time.Duration
	now     func() time.Time
}

func New(st store.LedgerStore) *Ledger {
	return &Ledger{store: st, timeout: 5 * time.Second, now: time.Now}
}

// Get returns the record for symbol, empty if none was ever saved.
func (l *Ledger) Get(ctx context.Context, symbol string) (store.LedgerRecord, error) {
	rec, err := l.store.LoadLedger(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return store.LedgerRecord{Symbol: symbol}, nil
	}
	return rec, err
}

func (l *Ledger) save(ctx context.Context, rec store.LedgerRecord) error {
	rec.UpdatedAt = l.now()
	return l.store.SaveLedger(ctx, rec)
}

// Override decides the size of the next cycle. While the regular risk does
// not cover the outstanding loss the cycle is sized to recoup it in one
// move of distance; otherwise the outstanding amount is written off.
func (l *Ledger) Override(symbol string, normalRisk, distance float64, f sizing.Filters) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.Get(ctx, symbol)
	if err != nil {
		return 0, false, fmt.Errorf("load ledger: %w", err)
	}
	if rec.Outstanding <= 0 {
		return 0, false, nil
	}
	if normalRisk < rec.Outstanding {
		qty := sizing.FixedForAmount(rec.Outstanding, distance, f)
		logger.Infof("loss recovery %s: outstanding %.4f exceeds normal risk %.4f, sizing %.8g", symbol, rec.Outstanding, normalRisk, qty)
		return qty, true, nil
	}
	logger.Infof("loss recovery %s: normal risk %.4f covers outstanding %.4f, resetting", symbol, normalRisk, rec.Outstanding)
	rec.Outstanding = 0
	if err := l.save(ctx, rec); err != nil {
		return 0, false, fmt.Errorf("reset ledger: %w", err)
	}
	return 0, false, nil
}

// Apply books a closed cycle: a worst-case loss grows the outstanding
// amount, a recovery cycle's profit shrinks it down to zero.
func (l *Ledger) Apply(ctx context.Context, o Outcome) (store.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.Get(ctx, o.Symbol)
	if err != nil {
		return rec, err
	}
	before := rec.Outstanding
	switch {
	case o.WorstCase && o.PnL < 0:
		rec.Outstanding += math.Abs(o.PnL)
	case o.Recovery && o.PnL > 0:
		rec.Outstanding = math.Max(0, rec.Outstanding-o.PnL)
	}
	if o.Balance > rec.BalanceMax {
		rec.BalanceMax = o.Balance
	}
	rec.LastCycleID = o.CycleID
	if err := l.save(ctx, rec); err != nil {
		return rec, err
	}
	if rec.Outstanding != before {
		logger.Trade("ledger", map[string]any{
			"symbol": o.Symbol, "cycle": o.CycleID, "pnl": o.PnL,
			"worst_case": o.WorstCase, "recovery": o.Recovery,
			"outstanding_before": before, "outstanding": rec.Outstanding,
		})
	}
	return rec, nil
}

// Rebase records a deposit: the balance becomes the new maximum and the
// outstanding amount is cleared. A balance at or below the maximum is a loss,
// which the regular recovery handles.
func (l *Ledger) Rebase(ctx context.Context, symbol string, balance float64) (store.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.Get(ctx, symbol)
	if err != nil {
		return rec, err
	}
	if balance <= rec.BalanceMax {
		return rec, fmt.Errorf("%w: balance %.4f, max %.4f", ErrBalanceBelowMax, balance, rec.BalanceMax)
	}
	logger.Infof("ledger %s rebased: balance max %.4f -> %.4f, outstanding %.4f cleared", symbol, rec.BalanceMax, balance, rec.Outstanding)
	rec.BalanceMax = balance
	rec.Outstanding = 0
	return rec, l.save(ctx, rec)
}
