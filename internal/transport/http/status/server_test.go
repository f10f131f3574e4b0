package statushttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/trader"
	"github.com/nirre55/bot-final/internal/types"
)

type fakeStatus struct{ st trader.Status }

func (f fakeStatus) Status() trader.Status { return f.st }

type fakeLedger struct {
	seen string
	err  error
}

func (f *fakeLedger) Get(_ context.Context, sym string) (store.LedgerRecord, error) {
	f.seen = sym
	return store.LedgerRecord{Symbol: sym, Outstanding: 12.5, BalanceMax: 1000}, f.err
}

type fakeHistory struct{ limit int }

func (f *fakeHistory) ListCycles(_ context.Context, sym string, limit int) ([]store.CycleRecord, error) {
	f.limit = limit
	return []store.CycleRecord{{CycleID: "c-1", Symbol: sym, PnL: -3.5}}, nil
}

type fakeJournal struct{ q journal.Query }

func (f *fakeJournal) List(_ context.Context, q journal.Query) ([]journal.Entry, error) {
	f.q = q
	return []journal.Entry{{ID: 1, Kind: journal.KindOrderRequest, ClientID: "hbabc"}}, nil
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Status == nil {
		cfg.Status = fakeStatus{st: trader.Status{
			Symbol:  "BTCUSDC",
			Variant: strategy.VariantCascade,
			Blocked: true,
			Account: types.AccountSnapshot{Asset: "USDC", Balance: 1000},
		}}
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTC/USDC"
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}

func TestNewServerRequiresStatus(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(t, ServerConfig{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := get(t, newTestServer(t, ServerConfig{}), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDC", body["symbol"])
	assert.Equal(t, "cascade", body["variant"])
	assert.Equal(t, true, body["blocked"])
}

func TestLedger(t *testing.T) {
	t.Run("default symbol", func(t *testing.T) {
		l := &fakeLedger{}
		rec := get(t, newTestServer(t, ServerConfig{Ledger: l}), "/api/ledger")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "BTCUSDC", l.seen)
		assert.Contains(t, rec.Body.String(), `"outstanding":12.5`)
	})
	t.Run("slash symbol", func(t *testing.T) {
		l := &fakeLedger{}
		rec := get(t, newTestServer(t, ServerConfig{Ledger: l}), "/api/ledger?symbol=eth/usdc")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ETHUSDC", l.seen)
	})
	t.Run("store failure", func(t *testing.T) {
		l := &fakeLedger{err: errors.New("disk full")}
		rec := get(t, newTestServer(t, ServerConfig{Ledger: l}), "/api/ledger")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
	t.Run("not configured", func(t *testing.T) {
		rec := get(t, newTestServer(t, ServerConfig{}), "/api/ledger")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCyclesClampLimit(t *testing.T) {
	h := &fakeHistory{}
	rec := get(t, newTestServer(t, ServerConfig{History: h}), "/api/cycles?limit=100000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, h.limit)
	assert.Contains(t, rec.Body.String(), `"cycle_id":"c-1"`)
}

func TestJournalFilters(t *testing.T) {
	j := &fakeJournal{}
	srv := newTestServer(t, ServerConfig{Journal: j})

	rec := get(t, srv, "/api/journal?kind=order_request&client_id=hbabc&since=2024-03-01T12:00:00Z&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, journal.KindOrderRequest, j.q.Kind)
	assert.Equal(t, "hbabc", j.q.ClientID)
	assert.Equal(t, 5, j.q.Limit)
	assert.True(t, j.q.Since.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	rec = get(t, srv, "/api/journal?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))
	srv := newTestServer(t, ServerConfig{LogPaths: map[string]string{"trades": path}})

	rec := get(t, srv, "/api/logs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Name  string   `json:"name"`
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "trades", body.Name)
	assert.Equal(t, []string{"two", "three"}, body.Lines)
}
