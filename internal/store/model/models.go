package model

import (
	"gorm.io/datatypes"
)

// LedgerModel is the persisted loss-recovery record, one row per symbol.
type LedgerModel struct {
	Symbol        string  `gorm:"column:symbol;primaryKey"`
	Outstanding   float64 `gorm:"column:outstanding"`
	BalanceMax    float64 `gorm:"column:balance_max"`
	LastCycleID   string  `gorm:"column:last_cycle_id"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (LedgerModel) TableName() string { return "loss_recovery_ledger" }

// CycleHistoryModel is one closed cycle.
type CycleHistoryModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CycleID       string         `gorm:"column:cycle_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Variant       string         `gorm:"column:variant"`
	Side          string         `gorm:"column:side"`
	Reason        string         `gorm:"column:reason"`
	WorstCase     bool           `gorm:"column:worst_case"`
	Recovery      bool           `gorm:"column:recovery"`
	PnL           float64        `gorm:"column:pnl"`
	Details       datatypes.JSON `gorm:"column:details;type:TEXT"`
	StartedAtUnix int64          `gorm:"column:started_at"`
	ClosedAtUnix  int64          `gorm:"column:closed_at;index"`
}

func (CycleHistoryModel) TableName() string { return "cycle_history" }
