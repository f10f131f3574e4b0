package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

// stubGateway is an idle venue: no positions, no orders, a fixed balance.
type stubGateway struct {
	balance float64
}

func (g *stubGateway) PlaceOrder(context.Context, exchange.OrderRequest) (exchange.OrderAck, error) {
	return exchange.OrderAck{}, &exchange.OrderError{Class: exchange.ClassPermanent, Message: "read-only stub"}
}
func (g *stubGateway) CancelOrder(context.Context, string, string, string) error { return nil }
func (g *stubGateway) GetPosition(context.Context, string) ([]types.PositionSnapshot, error) {
	return nil, nil
}
func (g *stubGateway) GetOpenOrders(context.Context, string) ([]exchange.OpenOrder, error) {
	return nil, nil
}
func (g *stubGateway) QueryOrder(context.Context, string, string, string) (exchange.ExecutionReport, error) {
	return exchange.ExecutionReport{}, exchange.ErrUnknownOrder
}
func (g *stubGateway) GetRealizedIncome(context.Context, string, time.Time) ([]exchange.Income, error) {
	return nil, nil
}
func (g *stubGateway) GetBalance(_ context.Context, asset string) (types.AccountSnapshot, error) {
	return types.AccountSnapshot{Asset: asset, Balance: g.balance, Available: g.balance}, nil
}
func (g *stubGateway) SymbolFilters(context.Context, string) (sizing.Filters, error) {
	return sizing.Filters{MinQty: 0.001, StepSize: 0.001, TickSize: 0.1}, nil
}

func testAppConfig(t *testing.T) *config.Config {
	cfg := config.Example()
	dir := t.TempDir()
	cfg.App.DBPath = filepath.Join(dir, "hedgebot.db")
	cfg.App.JournalPath = filepath.Join(dir, "journal.db")
	cfg.Market.Symbol = "BTC/USDC"
	return cfg
}

func buildTestApp(t *testing.T, cfg *config.Config, gw *stubGateway) *App {
	t.Helper()
	a, err := NewAppBuilder(cfg, WithVenue(&Venue{Gateway: gw}), WithoutStatusServer()).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBuildWiresTrader(t *testing.T) {
	a := buildTestApp(t, testAppConfig(t), &stubGateway{balance: 500})

	st := a.Trader().Status()
	assert.Equal(t, "BTCUSDC", st.Symbol)
	assert.Equal(t, "cascade", string(st.Variant))
	assert.Equal(t, "USDC", a.asset)

	var buf bytes.Buffer
	a.Summary.Print(&buf)
	assert.Contains(t, buf.String(), "BTCUSDC (USDC margin, mainnet)")
	assert.Contains(t, buf.String(), "variant:  cascade")
}

func TestBuildRejectsUnknownVariant(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Strategy.Variant = "martingale"
	_, err := NewAppBuilder(cfg, WithVenue(&Venue{Gateway: &stubGateway{}}), WithoutStatusServer()).Build(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := buildTestApp(t, testAppConfig(t), &stubGateway{balance: 500})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Trader().Status().Account.Balance == 500
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestReloadSwapsTradingHours(t *testing.T) {
	a := buildTestApp(t, testAppConfig(t), &stubGateway{})
	assert.Equal(t, "always", a.Trader().Status().Hours)

	next := testAppConfig(t)
	next.TradingHours = config.TradingHoursConfig{Enabled: true, Start: "08:00", End: "20:00", Timezone: "UTC"}
	a.Reload(next)
	assert.Equal(t, "08:00-20:00 UTC", a.Trader().Status().Hours)

	next.TradingHours.Start = "25:99"
	a.Reload(next)
	assert.Equal(t, "08:00-20:00 UTC", a.Trader().Status().Hours, "invalid windows are ignored")
}

func TestRebaseUsesVenueBalance(t *testing.T) {
	gw := &stubGateway{balance: 1500}
	a := buildTestApp(t, testAppConfig(t), gw)

	rec, err := a.Rebase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500.0, rec.BalanceMax)
	assert.Zero(t, rec.Outstanding)

	got, err := a.ledger.Get(context.Background(), "BTCUSDC")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, got.BalanceMax)

	gw.balance = 1000
	_, err = a.Rebase(context.Background())
	assert.Error(t, err, "balance below the recorded maximum")
}
