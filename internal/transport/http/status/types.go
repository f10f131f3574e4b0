package statushttp

import (
	"context"

	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/trader"
)

type StatusProvider interface {
	Status() trader.Status
}

type LedgerReader interface {
	Get(ctx context.Context, symbol string) (store.LedgerRecord, error)
}

type CycleHistory interface {
	ListCycles(ctx context.Context, symbol string, limit int) ([]store.CycleRecord, error)
}

type JournalReader interface {
	List(ctx context.Context, q journal.Query) ([]journal.Entry, error)
}
