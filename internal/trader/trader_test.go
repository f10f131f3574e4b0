package trader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nirre55/bot-final/internal/analysis/indicator"
	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/scheduler"
	"github.com/nirre55/bot-final/internal/signal"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/types"
)

const testSymbol = "BTCUSDC"

var (
	t0         = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	btcFilters = sizing.Filters{MinQty: 0.001, StepSize: 0.001, TickSize: 0.1}
)

func noSleep(context.Context, time.Duration) error { return nil }

type harness struct {
	tr      *Trader
	gw      *MockGateway
	ledger  *fakeLedger
	history *fakeHistory
	journal *fakeJournal
	clock   time.Time
}

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

func newHarness(t *testing.T, tweak ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		gw:      new(MockGateway),
		ledger:  &fakeLedger{},
		history: &fakeHistory{},
		journal: &fakeJournal{},
		clock:   t0,
	}
	series := market.NewSeries(200)
	series.Reset(flatCandles(10, 49800, 50200))
	session := strategy.NewSession(strategy.SessionOptions{
		Symbol: testSymbol,
		Asset:  "USDC",
		Series: series,
		Quantity: strategy.QuantitySettings{
			Mode: sizing.ModeFixed, Progression: sizing.ProgressionDouble, FixedQty: 0.01,
		},
		CloseWindow: 2 * time.Minute,
		Now:         func() time.Time { return h.clock },
	})
	session.SetFilters(btcFilters)
	session.SetAccount(types.AccountSnapshot{Asset: "USDC", Balance: 1000, Available: 1000})

	machine, err := signal.NewMachine([]signal.Threshold{{Period: 14, Oversold: 30, Overbought: 70}})
	require.NoError(t, err)

	cfg := config.Config{
		Hedge:      config.HedgeConfig{Lookback: 5, QuantityMultiplier: 2},
		Cascade:    config.CascadeConfig{MaxOrders: 10},
		TakeProfit: config.TakeProfitConfig{Multiplier: 1, IncrementPercent: 0.001, PriceOffset: 0.001},
	}
	opts := Options{
		Interval:  "1m",
		Engine:    strategy.NewCascade(cfg.Hedge, cfg.Cascade, cfg.TakeProfit),
		Session:   session,
		Gateway:   h.gw,
		Signals:   machine,
		Indicator: indicator.Settings{Periods: []int{14}},
		Ledger:    h.ledger,
		History:   h.history,
		Journal:   h.journal,
		Retry:     config.RetryConfig{Attempts: 3},
		Events:    config.EventsConfig{ShutdownTimeout: time.Second},
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	h.tr, err = New(opts)
	require.NoError(t, err)
	h.tr.orderRetry.Sleep = noSleep
	h.tr.settleRetry.Sleep = noSleep
	h.tr.syncRetry.Sleep = noSleep
	return h
}

// drain runs the execution loop inline until no venue call is in flight
// and no result is queued.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	h.drainTo(t, 0)
}

// drainTo is drain for tests that hold some venue calls open.
func (h *harness) drainTo(t *testing.T, inflight int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case evt := <-h.tr.execCh:
			h.tr.handleEvent(evt)
			continue
		default:
		}
		if h.tr.inflightCount.Load() == inflight && len(h.tr.execCh) == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("trader did not settle in time")
}

// cancelsFor counts CancelOrder calls naming clientID.
func (h *harness) cancelsFor(clientID string) int {
	n := 0
	for _, c := range h.gw.Calls {
		if c.Method == "CancelOrder" && c.Arguments.String(3) == clientID {
			n++
		}
	}
	return n
}

func (h *harness) acceptOrders() {
	h.gw.On("PlaceOrder", mock.Anything, mock.Anything).Return(ackNew, nil)
}

func (h *harness) venueSnapshot(positions []types.PositionSnapshot, open []exchange.OpenOrder) {
	h.gw.On("GetPosition", mock.Anything, testSymbol).Return(positions, nil)
	h.gw.On("GetOpenOrders", mock.Anything, testSymbol).Return(open, nil)
	h.gw.On("GetBalance", mock.Anything, "USDC").Return(types.AccountSnapshot{Asset: "USDC", Balance: 1000, Available: 900}, nil)
}

func (h *harness) fill(req exchange.OrderRequest, price float64) {
	rep := exchange.ExecutionReport{
		Symbol:              testSymbol,
		OrderID:             "v-" + req.ClientOrderID,
		ClientOrderID:       req.ClientOrderID,
		Side:                req.Side,
		PositionSide:        req.PositionSide,
		OrderType:           req.Type,
		Status:              exchange.StatusFilled,
		CumulativeFilledQty: req.Quantity,
		AveragePrice:        price,
		EventTime:           h.clock,
	}
	h.tr.handleEvent(EventEnvelope{Type: EvtExecution, Execution: &rep})
}

func ofType(typ exchange.OrderType) any {
	return mock.MatchedBy(func(r exchange.OrderRequest) bool { return r.Type == typ })
}

func longSignal() types.Signal {
	return types.Signal{ID: "sig-1", Direction: types.Long, ConfirmedAt: t0, ReferencePrice: 50000}
}

func TestSignalPlacesEntryAndHedge(t *testing.T) {
	h := newHarness(t)
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)

	entries := h.gw.Placed(exchange.OrderMarket)
	hedges := h.gw.Placed(exchange.OrderStopMarket)
	require.Len(t, entries, 1)
	require.Len(t, hedges, 1)
	assert.Equal(t, "BUY", entries[0].Side)
	assert.Equal(t, types.Long, entries[0].PositionSide)
	assert.InDelta(t, 0.01, entries[0].Quantity, 1e-12)
	assert.Equal(t, "SELL", hedges[0].Side)
	assert.Equal(t, types.Short, hedges[0].PositionSide)
	assert.InDelta(t, 0.02, hedges[0].Quantity, 1e-12)
	assert.Equal(t, 49800.0, hedges[0].StopPrice)
	assert.Equal(t, testSymbol, entries[0].Symbol)

	st := h.tr.Status()
	require.Len(t, st.Cycles, 1)
	assert.Equal(t, strategy.StateAwaitingProtection, st.Cycles[0].State)
	assert.Equal(t, strategy.VariantCascade, st.Variant)
	assert.Zero(t, st.Pending.InFlight)

	kinds := h.journal.kinds()
	assert.Equal(t, 2, kinds[journal.KindOrderRequest])
	assert.Equal(t, 2, kinds[journal.KindOrderResult])
}

func TestSecondSignalOnSameSideIsRejected(t *testing.T) {
	h := newHarness(t)
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	err := h.tr.OnSignal(longSignal())
	assert.ErrorIs(t, err, strategy.ErrCycleActive)
	h.drain(t)
	assert.Len(t, h.gw.Placed(exchange.OrderMarket), 1)
}

func TestDuplicateFillIsConsumedOnce(t *testing.T) {
	h := newHarness(t)
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	entry := h.gw.Placed(exchange.OrderMarket)[0]

	h.fill(entry, 50000)
	h.fill(entry, 50000)
	h.drain(t)

	targets := h.gw.Placed(exchange.OrderTakeProfit)
	require.Len(t, targets, 1)
	assert.InDelta(t, 50250.2, targets[0].Price, 1e-6)
	assert.Equal(t, "SELL", targets[0].Side)
	assert.Equal(t, types.Long, targets[0].PositionSide)

	st := h.tr.Status()
	require.Len(t, st.Cycles, 1)
	assert.Equal(t, strategy.StateActive, st.Cycles[0].State)
	assert.InDelta(t, 0.01, st.Cycles[0].Filled[types.Long], 1e-12)
}

func TestFillAfterRetireIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	entry := h.gw.Placed(exchange.OrderMarket)[0]
	h.fill(entry, 50000)
	h.drain(t)
	tracked := h.tr.session.TrackedCount()

	t.Run("same ids", func(t *testing.T) {
		h.fill(entry, 50000)
		h.drain(t)
	})
	t.Run("client id only", func(t *testing.T) {
		rep := exchange.ExecutionReport{Symbol: testSymbol, ClientOrderID: entry.ClientOrderID, Status: exchange.StatusFilled, CumulativeFilledQty: entry.Quantity, AveragePrice: 50000}
		h.tr.handleEvent(EventEnvelope{Type: EvtExecution, Execution: &rep})
		h.drain(t)
	})

	h.gw.AssertNotCalled(t, "GetPosition", mock.Anything, mock.Anything)
	h.gw.AssertNotCalled(t, "GetOpenOrders", mock.Anything, mock.Anything)
	h.gw.AssertNotCalled(t, "QueryOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, h.gw.Placed(exchange.OrderTakeProfit), 1)
	assert.Equal(t, tracked, h.tr.session.TrackedCount())
	assert.InDelta(t, 0.01, h.tr.Status().Cycles[0].Filled[types.Long], 1e-12)
}

func TestCancelIsRepeatedWhenPlacementConfirmsLate(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	var targets atomic.Int32
	h.gw.On("PlaceOrder", mock.Anything, ofType(exchange.OrderTakeProfit)).Return(
		func(req exchange.OrderRequest) (exchange.OrderAck, error) {
			if targets.Add(1) == 1 {
				<-release
			}
			return ackNew(req)
		}, nil)
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	entry := h.gw.Placed(exchange.OrderMarket)[0]
	hedge := h.gw.Placed(exchange.OrderStopMarket)[0]

	h.fill(entry, 50000)
	h.drainTo(t, 1)
	first := h.gw.Placed(exchange.OrderTakeProfit)
	require.Len(t, first, 1)
	stale := first[0].ClientOrderID

	// The venue has not seen the target yet when the replacement cancels it.
	h.gw.On("CancelOrder", mock.Anything, testSymbol, "", stale).Return(exchange.ErrUnknownOrder).Once()
	h.gw.On("CancelOrder", mock.Anything, testSymbol, mock.Anything, mock.Anything).Return(nil)
	h.fill(hedge, 49800)
	h.drainTo(t, 1)
	require.Equal(t, 1, h.cancelsFor(stale))

	close(release)
	h.drain(t)

	assert.Equal(t, 2, h.cancelsFor(stale), "confirmed order is cancelled again")
	h.gw.AssertCalled(t, "CancelOrder", mock.Anything, testSymbol, "v-"+stale, stale)
	o := h.tr.session.Lookup("", stale)
	require.NotNil(t, o)
	assert.True(t, o.CancelRequested)
	assert.Equal(t, strategy.StateActive, h.tr.Status().Cycles[0].State)

	canceled := exchange.ExecutionReport{Symbol: testSymbol, OrderID: "v-" + stale, ClientOrderID: stale, Status: exchange.StatusCanceled}
	h.tr.handleEvent(EventEnvelope{Type: EvtExecution, Execution: &canceled})
	assert.Nil(t, h.tr.session.Lookup("", stale))
}

func TestFilledAckIsRoutedAsFill(t *testing.T) {
	h := newHarness(t)
	h.gw.On("PlaceOrder", mock.Anything, ofType(exchange.OrderMarket)).Return(
		func(req exchange.OrderRequest) (exchange.OrderAck, error) {
			return exchange.OrderAck{
				OrderID: "v-" + req.ClientOrderID, ClientOrderID: req.ClientOrderID,
				Status: exchange.StatusFilled, AvgPrice: 50000, ExecutedQty: req.Quantity,
			}, nil
		}, nil)
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	entry := h.gw.Placed(exchange.OrderMarket)[0]
	h.fill(entry, 50000)
	h.drain(t)

	assert.Len(t, h.gw.Placed(exchange.OrderTakeProfit), 1)
}

func TestUntrackedFillTriggersResync(t *testing.T) {
	h := newHarness(t)
	h.venueSnapshot([]types.PositionSnapshot{}, []exchange.OpenOrder{})

	rep := exchange.ExecutionReport{Symbol: testSymbol, OrderID: "999", ClientOrderID: "web_1", Status: exchange.StatusFilled, CumulativeFilledQty: 0.5}
	h.tr.handleEvent(EventEnvelope{Type: EvtExecution, Execution: &rep})
	h.drain(t)

	h.gw.AssertNumberOfCalls(t, "GetOpenOrders", 1)
	assert.False(t, h.tr.Blocked())
	assert.Equal(t, 900.0, h.tr.session.Account().Available)
}

func TestInsufficientCapitalIsNotRetriedAndReleasesCycle(t *testing.T) {
	h := newHarness(t)
	capErr := &exchange.OrderError{Class: exchange.ClassInsufficientCapital, Code: -2019, Message: "Margin is insufficient."}
	h.gw.On("PlaceOrder", mock.Anything, ofType(exchange.OrderMarket)).Return(exchange.OrderAck{}, capErr)
	h.acceptOrders()
	h.gw.On("CancelOrder", mock.Anything, testSymbol, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)

	assert.Len(t, h.gw.Placed(exchange.OrderMarket), 1)
	hedge := h.gw.Placed(exchange.OrderStopMarket)
	require.Len(t, hedge, 1)
	h.gw.AssertCalled(t, "CancelOrder", mock.Anything, testSymbol, mock.Anything, hedge[0].ClientOrderID)
	assert.Empty(t, h.tr.Status().Cycles)

	// The slot is free again.
	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	assert.Len(t, h.gw.Placed(exchange.OrderMarket), 2)
}

func TestTransientPlacementErrorIsRetried(t *testing.T) {
	h := newHarness(t)
	busy := &exchange.OrderError{Class: exchange.ClassTransient, Code: -1001, Message: "Internal error; unable to process your request."}
	h.gw.On("PlaceOrder", mock.Anything, ofType(exchange.OrderMarket)).Return(exchange.OrderAck{}, busy).Once()
	h.acceptOrders()

	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)

	entries := h.gw.Placed(exchange.OrderMarket)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].ClientOrderID, entries[1].ClientOrderID, "retries reuse the client id")
	st := h.tr.Status()
	require.Len(t, st.Cycles, 1)
	assert.Equal(t, strategy.StateAwaitingProtection, st.Cycles[0].State)
}

func TestSignalOutsideTradingHoursIsRejected(t *testing.T) {
	hours, err := scheduler.ParseWindow(true, "00:00", "01:00", "UTC")
	require.NoError(t, err)
	h := newHarness(t, func(o *Options) { o.Hours = hours })

	err = h.tr.OnSignal(longSignal())
	assert.ErrorIs(t, err, ErrOutsideTradingHours)
	h.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	assert.Equal(t, 1, h.journal.kinds()[journal.KindCycle])
	assert.False(t, h.tr.Status().TradingOpen)

	h.acceptOrders()
	h.tr.SetTradingHours(scheduler.Window{})
	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)
	assert.Len(t, h.gw.Placed(exchange.OrderMarket), 1)
}

func TestBlockedUntilReconciliationSucceeds(t *testing.T) {
	h := newHarness(t)
	h.gw.On("SymbolFilters", mock.Anything, testSymbol).Return(btcFilters, nil)
	down := &exchange.OrderError{Class: exchange.ClassPermanent, Code: -2015, Message: "Invalid API-key"}
	h.gw.On("GetPosition", mock.Anything, testSymbol).Return(nil, down).Once()
	h.venueSnapshot([]types.PositionSnapshot{}, []exchange.OpenOrder{})

	require.NoError(t, h.tr.Start(context.Background()))
	require.True(t, h.tr.Blocked())
	assert.Contains(t, h.tr.Status().BlockReason, "startup reconciliation failed")
	assert.ErrorIs(t, h.tr.OnSignal(longSignal()), ErrBlocked)

	next := flatCandles(11, 49800, 50200)[10]
	h.tr.handleCandle(market.CandleEvent{Candle: next})
	h.drain(t)

	assert.False(t, h.tr.Blocked())
	assert.Empty(t, h.tr.Status().BlockReason)
	assert.Equal(t, next.CloseTime, h.tr.Status().LastCandle.UnixMilli())
}

func TestSettleBooksLedgerAndHistory(t *testing.T) {
	h := newHarness(t)
	st := strategy.Settlement{
		CycleID: "c-1", Symbol: testSymbol, Variant: strategy.VariantOneOrMore, Side: types.Long,
		StartedAt: t0, ClosedAt: t0.Add(5 * time.Minute), WorstCase: true, Reason: "hedge filled",
	}
	h.gw.On("GetRealizedIncome", mock.Anything, testSymbol, t0).Return([]exchange.Income{
		{Time: t0.Add(-time.Minute), Amount: 99, Type: "REALIZED_PNL"},
		{Time: t0.Add(time.Minute), Amount: -3, Type: "REALIZED_PNL"},
		{Time: t0.Add(2 * time.Minute), Amount: -0.5, Type: "COMMISSION"},
	}, nil)

	h.tr.dispatch([]strategy.Action{{Kind: strategy.ActionSettle, Settlement: &st}})
	h.drain(t)

	require.Len(t, h.ledger.outcomes, 1)
	out := h.ledger.outcomes[0]
	assert.InDelta(t, -3.5, out.PnL, 1e-9)
	assert.True(t, out.WorstCase)
	assert.Equal(t, "c-1", out.CycleID)
	assert.Equal(t, 1000.0, out.Balance)

	require.Len(t, h.history.cycles, 1)
	rec := h.history.cycles[0]
	assert.InDelta(t, -3.5, rec.PnL, 1e-9)
	assert.Equal(t, "one_or_more", rec.Variant)
	assert.Contains(t, string(rec.Details), `"worst_case":true`)
	assert.Equal(t, 1, h.journal.kinds()[journal.KindCycle])
}

func TestSettleLeavesLedgerAloneWhenIncomeUnavailable(t *testing.T) {
	h := newHarness(t)
	st := strategy.Settlement{CycleID: "c-2", Symbol: testSymbol, Variant: strategy.VariantCascade, StartedAt: t0}
	h.gw.On("GetRealizedIncome", mock.Anything, testSymbol, t0).Return(nil, errors.New("boom"))

	h.tr.dispatch([]strategy.Action{{Kind: strategy.ActionSettle, Settlement: &st}})
	h.drain(t)

	assert.Empty(t, h.ledger.outcomes)
	require.Len(t, h.history.cycles, 1)
	assert.Contains(t, string(h.history.cycles[0].Details), "boom")
}

func TestReconnectQueriesOrdersMissingFromVenue(t *testing.T) {
	h := newHarness(t)
	h.acceptOrders()
	require.NoError(t, h.tr.OnSignal(longSignal()))
	h.drain(t)

	entry := h.gw.Placed(exchange.OrderMarket)[0]
	hedge := h.gw.Placed(exchange.OrderStopMarket)[0]
	h.venueSnapshot(
		[]types.PositionSnapshot{{Symbol: testSymbol, Side: types.Long, Quantity: 0.01, EntryPrice: 50000}},
		[]exchange.OpenOrder{{OrderID: "v-" + hedge.ClientOrderID, ClientOrderID: hedge.ClientOrderID, Type: exchange.OrderStopMarket, Status: exchange.StatusNew}},
	)
	h.gw.On("QueryOrder", mock.Anything, testSymbol, "v-"+entry.ClientOrderID, entry.ClientOrderID).Return(exchange.ExecutionReport{
		Symbol: testSymbol, OrderID: "v-" + entry.ClientOrderID, ClientOrderID: entry.ClientOrderID,
		Status: exchange.StatusFilled, CumulativeFilledQty: 0.01, AveragePrice: 50000,
	}, nil)

	h.tr.handleEvent(EventEnvelope{Type: EvtReconnected})
	h.drain(t)

	h.gw.AssertNumberOfCalls(t, "QueryOrder", 1)
	targets := h.gw.Placed(exchange.OrderTakeProfit)
	require.Len(t, targets, 1)
	assert.InDelta(t, 50250.2, targets[0].Price, 1e-6)
	assert.InDelta(t, 0.01, h.tr.session.Position(types.Long).Quantity, 1e-12)
}

func TestAccountUpdateRefreshesBalanceAndPositions(t *testing.T) {
	h := newHarness(t)
	upd := exchange.AccountUpdate{
		Balances:  map[string]float64{"USDC": 1234.5, "BNB": 1},
		Positions: []types.PositionSnapshot{{Symbol: testSymbol, Side: types.Short, Quantity: 0.02, EntryPrice: 49800}},
		EventTime: t0,
	}
	h.tr.handleEvent(EventEnvelope{Type: EvtAccount, Account: &upd})

	assert.Equal(t, 1234.5, h.tr.session.Account().Balance)
	assert.InDelta(t, 0.02, h.tr.session.Position(types.Short).Quantity, 1e-12)
	assert.Len(t, h.tr.Status().Positions, 1)
}

func TestShutdownLeavesOrdersResting(t *testing.T) {
	h := newHarness(t)
	h.gw.On("SymbolFilters", mock.Anything, testSymbol).Return(btcFilters, nil)
	h.venueSnapshot([]types.PositionSnapshot{}, []exchange.OpenOrder{})
	h.gw.On("QueryOrder", mock.Anything, testSymbol, mock.Anything, mock.Anything).
		Return(exchange.ExecutionReport{Status: exchange.StatusNew}, nil).Maybe()
	h.acceptOrders()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.tr.OnSignal(longSignal()) == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		st := h.tr.Status()
		return len(h.gw.Placed("")) == 2 && st.Pending.InFlight == 0 && st.Pending.Executions == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	h.gw.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, h.tr.Status().Cycles, 1)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
