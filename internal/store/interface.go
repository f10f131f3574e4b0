package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// LedgerRecord is the loss-recovery state of one symbol.
type LedgerRecord struct {
	Symbol      string    `json:"symbol"`
	Outstanding float64   `json:"outstanding"`
	BalanceMax  float64   `json:"balance_max"`
	LastCycleID string    `json:"last_cycle_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CycleRecord is a closed cycle kept for the status API and audits.
type CycleRecord struct {
	CycleID   string          `json:"cycle_id"`
	Symbol    string          `json:"symbol"`
	Variant   string          `json:"variant"`
	Side      string          `json:"side"`
	Reason    string          `json:"reason"`
	WorstCase bool            `json:"worst_case"`
	Recovery  bool            `json:"recovery"`
	PnL       float64         `json:"pnl"`
	StartedAt time.Time       `json:"started_at"`
	ClosedAt  time.Time       `json:"closed_at"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// LedgerStore persists ledger records keyed by symbol. LoadLedger returns
// ErrNotFound when the symbol has no record yet.
type LedgerStore interface {
	LoadLedger(ctx context.Context, symbol string) (LedgerRecord, error)
	SaveLedger(ctx context.Context, rec LedgerRecord) error
}

type HistoryStore interface {
	SaveCycle(ctx context.Context, rec CycleRecord) error
	ListCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error)
}

// Store is the entry point for database access.
type Store interface {
	LedgerStore
	HistoryStore
	Close() error
}
