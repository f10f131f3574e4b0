package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore keeps the loss-recovery ledger and closed-cycle history in a
// SQLite file through Gorm.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (and migrates) the database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.LedgerModel{}, &model.CycleHistoryModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: the status API reads while the trader writes.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// --------------------------- Ledger ------------------------------

func (s *GormStore) LoadLedger(ctx context.Context, symbol string) (store.LedgerRecord, error) {
	if s == nil || s.db == nil {
		return store.LedgerRecord{}, fmt.Errorf("gorm store not initialized")
	}
	symbol = normalizeSymbol(symbol)
	var m model.LedgerModel
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.LedgerRecord{Symbol: symbol}, store.ErrNotFound
	}
	if err != nil {
		return store.LedgerRecord{}, err
	}
	return store.LedgerRecord{
		Symbol:      m.Symbol,
		Outstanding: m.Outstanding,
		BalanceMax:  m.BalanceMax,
		LastCycleID: m.LastCycleID,
		UpdatedAt:   unixMilli(m.UpdatedAtUnix),
	}, nil
}

func (s *GormStore) SaveLedger(ctx context.Context, rec store.LedgerRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	rec.Symbol = normalizeSymbol(rec.Symbol)
	if rec.Symbol == "" {
		return fmt.Errorf("ledger symbol is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	m := model.LedgerModel{
		Symbol:        rec.Symbol,
		Outstanding:   rec.Outstanding,
		BalanceMax:    rec.BalanceMax,
		LastCycleID:   rec.LastCycleID,
		UpdatedAtUnix: rec.UpdatedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"outstanding", "balance_max", "last_cycle_id", "updated_at"}),
		}).
		Create(&m).Error
}

// --------------------------- History ------------------------------

func (s *GormStore) SaveCycle(ctx context.Context, rec store.CycleRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if strings.TrimSpace(rec.CycleID) == "" {
		return fmt.Errorf("cycle id is required")
	}
	m := model.CycleHistoryModel{
		CycleID:       rec.CycleID,
		Symbol:        normalizeSymbol(rec.Symbol),
		Variant:       rec.Variant,
		Side:          rec.Side,
		Reason:        rec.Reason,
		WorstCase:     rec.WorstCase,
		Recovery:      rec.Recovery,
		PnL:           rec.PnL,
		StartedAtUnix: rec.StartedAt.UnixMilli(),
		ClosedAtUnix:  rec.ClosedAt.UnixMilli(),
	}
	if len(rec.Details) > 0 {
		m.Details = datatypes.JSON(rec.Details)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cycle_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "worst_case", "recovery", "pnl", "details", "closed_at"}),
		}).
		Create(&m).Error
}

// ListCycles returns the newest cycles first. An empty symbol lists all.
func (s *GormStore) ListCycles(ctx context.Context, symbol string, limit int) ([]store.CycleRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("closed_at DESC").Order("id DESC").Limit(limit)
	if sym := normalizeSymbol(symbol); sym != "" {
		q = q.Where("symbol = ?", sym)
	}
	var models []model.CycleHistoryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.CycleRecord, 0, len(models))
	for _, m := range models {
		out = append(out, store.CycleRecord{
			CycleID:   m.CycleID,
			Symbol:    m.Symbol,
			Variant:   m.Variant,
			Side:      m.Side,
			Reason:    m.Reason,
			WorstCase: m.WorstCase,
			Recovery:  m.Recovery,
			PnL:       m.PnL,
			StartedAt: unixMilli(m.StartedAtUnix),
			ClosedAt:  unixMilli(m.ClosedAtUnix),
			Details:   []byte(m.Details),
		})
	}
	return out, nil
}

// --------------------------- Helpers ------------------------------

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func normalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func unixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
