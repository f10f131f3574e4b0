package trader

import (
	"context"
	"time"

	"github.com/nirre55/bot-final/internal/ledger"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
)

// EventStore is the audit trail every order request, result and execution
// report is appended to.
type EventStore interface {
	Record(ctx context.Context, kind journal.Kind, symbol string, v any, fill func(*journal.Entry)) error
}

// LossLedger books the outcome of closed cycles.
type LossLedger interface {
	Apply(ctx context.Context, o ledger.Outcome) (store.LedgerRecord, error)
}

// record writes to the event store without ever failing the caller.
func (t *Trader) record(kind journal.Kind, v any, fill func(*journal.Entry)) {
	if t.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.journal.Record(ctx, kind, t.session.Symbol, v, fill); err != nil {
		logger.Warnf("Trader: journal %s failed: %v", kind, err)
	}
}
