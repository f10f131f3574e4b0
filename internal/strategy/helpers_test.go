package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	s     *Session
	clock time.Time
}

func (f *fixture) now() time.Time { return f.clock }

func newFixture(t *testing.T, filters sizing.Filters, qty QuantitySettings, candles ...market.Candle) *fixture {
	t.Helper()
	f := &fixture{clock: t0}
	series := market.NewSeries(200)
	for _, c := range candles {
		require.True(t, series.Append(c))
	}
	f.s = NewSession(SessionOptions{
		Symbol:      "BTCUSDC",
		Asset:       "USDC",
		Series:      series,
		Quantity:    qty,
		CloseWindow: 2 * time.Minute,
		Now:         f.now,
	})
	f.s.SetFilters(filters)
	return f
}

// flatCandles builds n closed candles spanning [low, high].
func flatCandles(n int, low, high float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		open := int64(i) * 60_000
		out[i] = market.Candle{
			OpenTime: open, CloseTime: open + 59_999,
			Open: (low + high) / 2, High: high, Low: low, Close: (low + high) / 2,
			Volume: 10, Closed: true,
		}
	}
	return out
}

func rising(n int, start, step float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		open := int64(i) * 60_000
		c := start + float64(i)*step
		out[i] = market.Candle{
			OpenTime: open, CloseTime: open + 59_999,
			Open: c - step/2, High: c + step/4, Low: c - step, Close: c,
			Volume: 10, Closed: true,
		}
	}
	return out
}

func signalAt(side types.Side, price float64) types.Signal {
	return types.Signal{ID: "sig-1", Direction: side, ConfirmedAt: t0, ReferencePrice: price}
}

func placed(acts []Action) []*TrackedOrder {
	var out []*TrackedOrder
	for _, a := range acts {
		if a.Kind == ActionPlace {
			out = append(out, a.Order)
		}
	}
	return out
}

func cancelled(acts []Action) []*TrackedOrder {
	var out []*TrackedOrder
	for _, a := range acts {
		if a.Kind == ActionCancel {
			out = append(out, a.Order)
		}
	}
	return out
}

func settlement(acts []Action) *Settlement {
	for _, a := range acts {
		if a.Kind == ActionSettle {
			return a.Settlement
		}
	}
	return nil
}

func byRole(orders []*TrackedOrder, role Role) *TrackedOrder {
	for _, o := range orders {
		if o.Role == role {
			return o
		}
	}
	return nil
}

// fill drives one order through the engine as the router would.
func (f *fixture) fill(e Engine, o *TrackedOrder, price, qty float64) []Action {
	f.s.Acknowledge(o, "x-"+o.ClientID)
	ApplyFill(o, exchange.ExecutionReport{
		Status:              exchange.StatusFilled,
		CumulativeFilledQty: qty,
		AveragePrice:        price,
		EventTime:           f.clock,
	})
	unlock := f.s.Lock(e.Scope(o.Owner)...)
	defer unlock()
	c := f.s.Cycle(o.Owner)
	if c == nil {
		return nil
	}
	return e.OnFill(f.s, c, o)
}

func (f *fixture) ack(e Engine, o *TrackedOrder) {
	f.s.Acknowledge(o, "x-"+o.ClientID)
	unlock := f.s.Lock(e.Scope(o.Owner)...)
	defer unlock()
	if c := f.s.Cycle(o.Owner); c != nil {
		e.OnAcknowledged(f.s, c, o)
	}
}

func (f *fixture) signal(e Engine, sig types.Signal) ([]Action, error) {
	unlock := f.s.Lock(e.Scope(sig.Direction)...)
	defer unlock()
	return e.OnSignal(f.s, sig)
}

func (f *fixture) cycle(side types.Side) *Cycle {
	unlock := f.s.Lock(side)
	defer unlock()
	return f.s.Cycle(side)
}

func testConfig() *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{Variant: "cascade"},
		Hedge:    config.HedgeConfig{Lookback: 5, OffsetPercent: 0, QuantityMultiplier: 2},
		Cascade:  config.CascadeConfig{MaxOrders: 10},
		TakeProfit: config.TakeProfitConfig{
			Multiplier: 1, IncrementPercent: 0.001, PriceOffset: 0.001,
		},
		Accumulator: config.AccumulatorConfig{MaxAccumulations: 2, TPPercent: 0.01},
		StopTarget: config.StopTargetConfig{
			SLLookback: 5, SLOffsetPercent: 0, TPPercent: 0.005,
			ExitPeriod: 5, ExitOversold: 30, ExitOverbought: 70,
			SLRetryAttempts: 5, SLRetryDelay: 2 * time.Second,
		},
		OneOrMore: config.OneOrMoreConfig{
			TPSafetyOffsetPercent: 0.0005, MinDistancePercent: 0.002,
			SmallDistanceOffsetPercent: 0.0015, PostHedgeEntryRR: 0.5, PostHedgeHedgeRR: 1.5,
		},
	}
}
