package trader

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/ledger"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/types"
)

type MockGateway struct {
	mock.Mock

	mu     sync.Mutex
	placed []exchange.OrderRequest
}

// ackNew acknowledges a placement with an exchange id derived from the
// client id, so tests can build matching execution reports.
func ackNew(req exchange.OrderRequest) (exchange.OrderAck, error) {
	return exchange.OrderAck{OrderID: "v-" + req.ClientOrderID, ClientOrderID: req.ClientOrderID, Status: exchange.StatusNew}, nil
}

func (m *MockGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	m.mu.Lock()
	m.placed = append(m.placed, req)
	m.mu.Unlock()
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(exchange.OrderRequest) (exchange.OrderAck, error)); ok {
		return fn(req)
	}
	return args.Get(0).(exchange.OrderAck), args.Error(1)
}

func (m *MockGateway) CancelOrder(ctx context.Context, symbol, orderID, clientOrderID string) error {
	args := m.Called(ctx, symbol, orderID, clientOrderID)
	return args.Error(0)
}

func (m *MockGateway) GetPosition(ctx context.Context, symbol string) ([]types.PositionSnapshot, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PositionSnapshot), args.Error(1)
}

func (m *MockGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exchange.OpenOrder), args.Error(1)
}

func (m *MockGateway) QueryOrder(ctx context.Context, symbol, orderID, clientOrderID string) (exchange.ExecutionReport, error) {
	args := m.Called(ctx, symbol, orderID, clientOrderID)
	return args.Get(0).(exchange.ExecutionReport), args.Error(1)
}

func (m *MockGateway) GetRealizedIncome(ctx context.Context, symbol string, since time.Time) ([]exchange.Income, error) {
	args := m.Called(ctx, symbol, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exchange.Income), args.Error(1)
}

func (m *MockGateway) GetBalance(ctx context.Context, asset string) (types.AccountSnapshot, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(types.AccountSnapshot), args.Error(1)
}

func (m *MockGateway) SymbolFilters(ctx context.Context, symbol string) (sizing.Filters, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(sizing.Filters), args.Error(1)
}

// Placed returns the requests seen so far, matching typ when it is set.
func (m *MockGateway) Placed(typ exchange.OrderType) []exchange.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []exchange.OrderRequest
	for _, r := range m.placed {
		if typ == "" || r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	outcomes []ledger.Outcome
}

func (l *fakeLedger) Apply(_ context.Context, o ledger.Outcome) (store.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
	return store.LedgerRecord{Symbol: o.Symbol, Outstanding: -o.PnL, LastCycleID: o.CycleID}, nil
}

type fakeHistory struct {
	mu     sync.Mutex
	cycles []store.CycleRecord
}

func (h *fakeHistory) SaveCycle(_ context.Context, rec store.CycleRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cycles = append(h.cycles, rec)
	return nil
}

func (h *fakeHistory) ListCycles(_ context.Context, symbol string, limit int) ([]store.CycleRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]store.CycleRecord(nil), h.cycles...), nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *fakeJournal) Record(_ context.Context, kind journal.Kind, symbol string, _ any, fill func(*journal.Entry)) error {
	e := journal.Entry{Kind: kind, Symbol: symbol}
	if fill != nil {
		fill(&e)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *fakeJournal) kinds() map[journal.Kind]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[journal.Kind]int)
	for _, e := range j.entries {
		out[e.Kind]++
	}
	return out
}
