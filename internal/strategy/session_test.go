package strategy

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

type mockPlanner struct{ mock.Mock }

func (m *mockPlanner) Override(symbol string, normalRisk, distance float64, f sizing.Filters) (float64, bool, error) {
	args := m.Called(symbol, normalRisk, distance, f)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

var smallFilters = sizing.Filters{MinQty: 0.1, StepSize: 0.1, TickSize: 0.01}

func percentSession(planner RecoveryPlanner) *Session {
	s := NewSession(SessionOptions{
		Symbol:   "BTCUSDC",
		Quantity: QuantitySettings{Mode: sizing.ModePercentage, Progression: sizing.ProgressionDouble, RiskPercent: 0.03},
		Recovery: planner,
	})
	s.SetFilters(smallFilters)
	s.SetAccount(types.AccountSnapshot{Balance: 100})
	return s
}

func TestPlanQuantityRegular(t *testing.T) {
	s := percentSession(nil)
	plan := s.PlanQuantity(0.2)
	assert.InDelta(t, 15, plan.Quantity, 1e-9)
	assert.Equal(t, sizing.ModePercentage, plan.Mode)
	assert.False(t, plan.Recovery)
}

func TestPlanQuantityRecoveryOverride(t *testing.T) {
	p := new(mockPlanner)
	p.On("Override", "BTCUSDC", mock.Anything, 0.2, smallFilters).Return(25.0, true, nil).Once()
	plan := percentSession(p).PlanQuantity(0.2)
	assert.InDelta(t, 25, plan.Quantity, 1e-9)
	assert.Equal(t, sizing.ModeFixed, plan.Mode)
	assert.True(t, plan.Recovery)
	p.AssertExpectations(t)
}

func TestPlanQuantityLedgerErrorFallsBack(t *testing.T) {
	p := new(mockPlanner)
	p.On("Override", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0.0, false, errors.New("db locked"))
	plan := percentSession(p).PlanQuantity(0.2)
	assert.InDelta(t, 15, plan.Quantity, 1e-9)
	assert.False(t, plan.Recovery)
}

func TestLockOrderingDoesNotDeadlock(t *testing.T) {
	s := NewSession(SessionOptions{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); s.Lock(types.Short, types.Long)() }()
		go func() { defer wg.Done(); s.Lock(types.Long, types.Short)() }()
		go func() { defer wg.Done(); s.Lock(types.Short)() }()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
}

func TestOrderIndex(t *testing.T) {
	f := newFixture(t, btcFilters, fixedQty(0.002), flatCandles(5, 49800, 50100)...)
	e := NewCascade(testConfig().Hedge, testConfig().Cascade, testConfig().TakeProfit)
	acts, err := f.signal(e, signalAt(types.Long, 50000))
	require.NoError(t, err)
	entry := placed(acts)[0]

	assert.Len(t, entry.ClientID, 34)
	assert.Equal(t, 2, f.s.TrackedCount())
	assert.Same(t, entry, f.s.Lookup("", entry.ClientID))
	assert.Nil(t, f.s.Lookup("123", ""))

	f.s.Acknowledge(entry, "123")
	assert.Equal(t, OrderOpen, entry.State)
	assert.Same(t, entry, f.s.Lookup("123", "other"))

	f.s.Retire(entry)
	assert.Nil(t, f.s.Lookup("123", entry.ClientID))
	assert.Equal(t, 1, f.s.TrackedCount())
	assert.False(t, f.s.WasConsumed("123", entry.ClientID), "cancelled orders are forgotten")

	hedge := placed(acts)[1]
	f.s.Acknowledge(hedge, "456")
	hedge.Consumed = true
	f.s.Retire(hedge)
	assert.Zero(t, f.s.TrackedCount())
	assert.True(t, f.s.WasConsumed("456", ""))
	assert.True(t, f.s.WasConsumed("", hedge.ClientID))
	assert.False(t, f.s.WasConsumed("", ""))
}

func TestRetiredSetIsBounded(t *testing.T) {
	var r retiredSet
	for i := 0; i < retiredCapacity+10; i++ {
		r.add(fmt.Sprintf("id-%d", i), "")
	}
	assert.Len(t, r.order, retiredCapacity)
	assert.Len(t, r.ids, retiredCapacity)
	assert.False(t, r.has("id-0"))
	assert.False(t, r.has("id-9"))
	assert.True(t, r.has("id-10"))
	assert.True(t, r.has(fmt.Sprintf("id-%d", retiredCapacity+9)))

	r.add("id-10")
	assert.Len(t, r.order, retiredCapacity, "re-adding a known id does not evict")
}

func TestViewsCopyOpenCycles(t *testing.T) {
	f := newFixture(t, btcFilters, fixedQty(0.002), flatCandles(5, 49800, 50100)...)
	e := NewCascade(testConfig().Hedge, testConfig().Cascade, testConfig().TakeProfit)
	_, err := f.signal(e, signalAt(types.Short, 50000))
	require.NoError(t, err)

	views := f.s.Views()
	require.Len(t, views, 1)
	assert.Equal(t, types.Short, views[0].Side)
	assert.Equal(t, 50100.0, views[0].HedgePrice)
	assert.Len(t, views[0].LiveOrders, 2)
}

func TestNewBuildsEveryVariant(t *testing.T) {
	for _, v := range Variants {
		cfg := testConfig()
		cfg.Strategy.Variant = string(v)
		e, err := New(cfg)
		require.NoError(t, err, v)
		assert.Equal(t, v, e.Variant())
	}
	cfg := testConfig()
	cfg.Strategy.Variant = "martingale"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestScopeFollowsVariant(t *testing.T) {
	cfg := testConfig()
	both := []types.Side{types.Long, types.Short}
	assert.Equal(t, both, NewCascade(cfg.Hedge, cfg.Cascade, cfg.TakeProfit).Scope(types.Short))
	assert.Equal(t, both, NewOneOrMore(cfg.Hedge, cfg.OneOrMore, cfg.TakeProfit).Scope(types.Long))
	assert.Equal(t, []types.Side{types.Short}, NewStopTarget(cfg.StopTarget, cfg.TakeProfit).Scope(types.Short))
}

func TestQuantityFrom(t *testing.T) {
	q, err := QuantityFrom(config.QuantityConfig{Mode: "Percentage", Progression: "step", RiskPercent: 0.02, Step: 0.5})
	require.NoError(t, err)
	assert.Equal(t, sizing.ModePercentage, q.Mode)
	assert.Equal(t, sizing.ProgressionStep, q.Progression)
	assert.Equal(t, 0.5, q.Step)

	_, err = QuantityFrom(config.QuantityConfig{Mode: "all_in", Progression: "double"})
	assert.Error(t, err)
}
