// Package journal is the append-only audit trail of every order request,
// order result and execution report.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type Kind string

const (
	KindOrderRequest Kind = "order_request"
	KindOrderResult  Kind = "order_result"
	KindCancel       Kind = "cancel"
	KindExecution    Kind = "execution"
	KindCycle        Kind = "cycle"
)

// Entry is one journal line. Payload holds the JSON of the event itself.
type Entry struct {
	ID       int64           `json:"id"`
	Kind     Kind            `json:"kind"`
	Symbol   string          `json:"symbol"`
	CycleID  string          `json:"cycle_id,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	OrderID  string          `json:"order_id,omitempty"`
	Error    string          `json:"error,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	At       time.Time       `json:"at"`
}

type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates the journal database at path.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			symbol TEXT NOT NULL,
			cycle_id TEXT,
			client_id TEXT,
			order_id TEXT,
			error TEXT,
			payload TEXT,
			at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_at ON journal(at);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_client ON journal(client_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Append writes e. A zero At is stamped with the current time.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return fmt.Errorf("journal closed")
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO journal (kind, symbol, cycle_id, client_id, order_id, error, payload, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), strings.ToUpper(e.Symbol), e.CycleID, e.ClientID, e.OrderID, e.Error, string(e.Payload), e.At.UnixMilli())
	return err
}

// Record marshals v as the payload of a new entry.
func (j *Journal) Record(ctx context.Context, kind Kind, symbol string, v any, fill func(*Entry)) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := Entry{Kind: kind, Symbol: symbol, Payload: payload}
	if fill != nil {
		fill(&e)
	}
	return j.Append(ctx, e)
}

// Query filters the journal. Zero fields match everything.
type Query struct {
	Since    time.Time
	Kind     Kind
	ClientID string
	Limit    int
}

// List returns matching entries oldest first.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, q.ClientID)
	}
	stmt := `SELECT id, kind, symbol, cycle_id, client_id, order_id, error, payload, at FROM journal`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY id ASC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, fmt.Errorf("journal closed")
	}
	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e                                      Entry
			kind                                   string
			cycleID, clientID, orderID, errText, p sql.NullString
			at                                     int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.Symbol, &cycleID, &clientID, &orderID, &errText, &p, &at); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.CycleID = cycleID.String
		e.ClientID = clientID.String
		e.OrderID = orderID.String
		e.Error = errText.String
		if p.String != "" {
			e.Payload = json.RawMessage(p.String)
		}
		e.At = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
