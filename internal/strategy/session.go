package strategy

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

var (
	ErrCycleActive         = errors.New("a cycle is already active")
	ErrPositionExists      = errors.New("a position is already open on this side")
	ErrInsufficientHistory = errors.New("not enough candles for the protective level")
	ErrAccumulationCap     = errors.New("accumulation limit reached")
	ErrCycleNotActive      = errors.New("cycle is not accepting new entries")
	ErrZeroDistance        = errors.New("distance to protective level is zero")
)

// QuantitySettings is the sizing part of the configuration.
type QuantitySettings struct {
	Mode        sizing.Mode
	Progression sizing.Progression
	FixedQty    float64
	RiskPercent float64
	Step        float64
}

// RecoveryPlanner lets the loss-recovery ledger replace the regular size.
type RecoveryPlanner interface {
	Override(symbol string, normalRisk, distance float64, f sizing.Filters) (float64, bool, error)
}

type SessionOptions struct {
	Symbol      string
	Asset       string
	Series      *market.Series
	Quantity    QuantitySettings
	Recovery    RecoveryPlanner
	CloseWindow time.Duration
	Now         func() time.Time
}

// Session is the explicit trading context shared by the engine and the
// trader: account state, symbol filters, candles and the per-side cycles.
// A cycle may only be read or mutated while its side is locked.
type Session struct {
	Symbol      string
	Asset       string
	CloseWindow time.Duration

	locks  [2]sync.Mutex
	cycles [2]*Cycle

	mu          sync.RWMutex
	filters     sizing.Filters
	account     types.AccountSnapshot
	positions   [2]types.PositionSnapshot
	orders      map[string]*TrackedOrder
	exchangeIDs map[string]string
	consumed    retiredSet

	series   *market.Series
	quantity QuantitySettings
	recovery RecoveryPlanner
	now      func() time.Time
}

func NewSession(opts SessionOptions) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	series := opts.Series
	if series == nil {
		series = market.NewSeries(0)
	}
	return &Session{
		Symbol:      opts.Symbol,
		Asset:       opts.Asset,
		CloseWindow: opts.CloseWindow,
		orders:      make(map[string]*TrackedOrder),
		exchangeIDs: make(map[string]string),
		series:      series,
		quantity:    opts.Quantity,
		recovery:    opts.Recovery,
		now:         now,
	}
}

func sideIndex(s types.Side) int {
	if s == types.Short {
		return 1
	}
	return 0
}

// Lock takes the given sides in a fixed order and returns the unlock func.
func (s *Session) Lock(sides ...types.Side) func() {
	var want [2]bool
	for _, side := range sides {
		want[sideIndex(side)] = true
	}
	var held []int
	for i := 0; i < 2; i++ {
		if want[i] {
			s.locks[i].Lock()
			held = append(held, i)
		}
	}
	return func() {
		for j := len(held) - 1; j >= 0; j-- {
			s.locks[held[j]].Unlock()
		}
	}
}

// Cycle returns the cycle keyed by side; the side must be locked.
func (s *Session) Cycle(side types.Side) *Cycle {
	return s.cycles[sideIndex(side)]
}

func (s *Session) attach(c *Cycle) { s.cycles[sideIndex(c.Side)] = c }

func (s *Session) detach(c *Cycle) {
	idx := sideIndex(c.Side)
	if s.cycles[idx] == c {
		s.cycles[idx] = nil
	}
}

// Views copies every open cycle. It locks both sides.
func (s *Session) Views() []View {
	unlock := s.Lock(types.Long, types.Short)
	defer unlock()
	var out []View
	for _, c := range s.cycles {
		if c.Open() {
			out = append(out, c.View())
		}
	}
	return out
}

func (s *Session) Now() time.Time { return s.now() }

func (s *Session) Series() *market.Series { return s.series }

func (s *Session) Filters() sizing.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

func (s *Session) SetFilters(f sizing.Filters) {
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
}

func (s *Session) Account() types.AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) SetAccount(a types.AccountSnapshot) {
	s.mu.Lock()
	s.account = a
	s.mu.Unlock()
}

func (s *Session) Position(side types.Side) types.PositionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[sideIndex(side)]
}

func (s *Session) SetPosition(p types.PositionSnapshot) {
	if !p.Side.Valid() {
		return
	}
	s.mu.Lock()
	s.positions[sideIndex(p.Side)] = p
	s.mu.Unlock()
}

// newClientID fits the venue's 36 character client order id limit.
func newClientID() string {
	return "hb" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Session) track(o *TrackedOrder) {
	s.mu.Lock()
	s.orders[o.ClientID] = o
	if o.OrderID != "" {
		s.exchangeIDs[o.OrderID] = o.ClientID
	}
	s.mu.Unlock()
}

// Lookup finds a tracked order by exchange id, falling back to client id.
func (s *Session) Lookup(orderID, clientID string) *TrackedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if orderID != "" {
		if cid, ok := s.exchangeIDs[orderID]; ok {
			return s.orders[cid]
		}
	}
	if clientID != "" {
		return s.orders[clientID]
	}
	return nil
}

// Acknowledge binds the venue id to an order placed by the dispatcher.
func (s *Session) Acknowledge(o *TrackedOrder, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if orderID != "" {
		o.OrderID = orderID
		s.exchangeIDs[orderID] = o.ClientID
	}
	if o.State == OrderPending {
		o.State = OrderOpen
	}
}

// Retire drops an order from the index once it has been dispatched.
// Consumed orders stay recognisable so late duplicates can be ignored.
func (s *Session) Retire(o *TrackedOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, o.ClientID)
	if o.OrderID != "" {
		delete(s.exchangeIDs, o.OrderID)
	}
	if o.Consumed {
		s.consumed.add(o.ClientID, o.OrderID)
	}
}

// WasConsumed reports whether a retired order already had its final
// report dispatched.
func (s *Session) WasConsumed(orderID, clientID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumed.has(orderID) || s.consumed.has(clientID)
}

const retiredCapacity = 512

// retiredSet is a FIFO-bounded set of order ids.
type retiredSet struct {
	ids   map[string]struct{}
	order []string
}

func (r *retiredSet) add(ids ...string) {
	if r.ids == nil {
		r.ids = make(map[string]struct{}, retiredCapacity)
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := r.ids[id]; ok {
			continue
		}
		if len(r.order) >= retiredCapacity {
			delete(r.ids, r.order[0])
			r.order = r.order[1:]
		}
		r.ids[id] = struct{}{}
		r.order = append(r.order, id)
	}
}

func (r *retiredSet) has(id string) bool {
	if id == "" {
		return false
	}
	_, ok := r.ids[id]
	return ok
}

// TrackedCount is the number of indexed orders.
func (s *Session) TrackedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// PlanQuantity sizes a new cycle. The ledger may replace the regular plan
// with a FIXED recovery size.
func (s *Session) PlanQuantity(distance float64) sizing.Plan {
	f := s.Filters()
	in := sizing.Input{
		Mode:           s.quantity.Mode,
		Balance:        s.Account().Balance,
		RiskPercent:    s.quantity.RiskPercent,
		FixedQty:       s.quantity.FixedQty,
		DistanceToStop: distance,
		Filters:        f,
	}
	plan := sizing.Plan{
		Mode:        s.quantity.Mode,
		Progression: s.quantity.Progression,
		StepSize:    s.quantity.Step,
		Quantity:    sizing.Quantity(in),
		Filters:     f,
	}
	if s.recovery == nil {
		return plan
	}
	qty, ok, err := s.recovery.Override(s.Symbol, in.NormalRisk(), distance, f)
	if err != nil {
		logger.Warnf("loss recovery lookup failed, using regular size: %v", err)
		return plan
	}
	if ok {
		plan.Mode = sizing.ModeFixed
		plan.Quantity = qty
		plan.Recovery = true
	}
	return plan
}

// protectiveLevel reads the recent extreme for leg over lookback candles.
func (s *Session) protectiveLevel(leg types.Side, lookback int, offset float64) (float64, bool) {
	low, high, ok := s.series.Extremes(lookback)
	if !ok {
		return 0, false
	}
	return s.Filters().RoundPrice(ProtectiveLevel(leg, low, high, offset)), true
}

// openCycle creates and attaches a cycle for sig.
func (s *Session) openCycle(v Variant, sig types.Signal, plan sizing.Plan) *Cycle {
	c := newCycle(uuid.NewString(), v, sig, plan, s.now())
	s.attach(c)
	return c
}

type orderSpec struct {
	role    Role
	leg     types.Side
	typ     exchange.OrderType
	qty     float64
	trigger float64
	limit   float64
	opening bool
}

// newOrder registers an order for c. Quantities are floored to the lot step
// and prices rounded to the tick.
func (s *Session) newOrder(c *Cycle, spec orderSpec) *TrackedOrder {
	f := s.Filters()
	side := spec.leg.CloseSide()
	if spec.opening {
		side = spec.leg.OpenSide()
	}
	o := &TrackedOrder{
		ClientID:     newClientID(),
		CycleID:      c.ID,
		Owner:        c.Side,
		Role:         spec.role,
		Side:         side,
		PositionSide: spec.leg,
		Type:         spec.typ,
		Quantity:     f.FloorQty(spec.qty),
		State:        OrderPending,
		CreatedAt:    s.now(),
	}
	if spec.trigger > 0 {
		o.TriggerPrice = f.RoundPrice(spec.trigger)
	}
	if spec.limit > 0 {
		o.LimitPrice = f.RoundPrice(spec.limit)
	}
	c.add(o)
	s.track(o)
	return o
}

// adopt tracks a resting venue order found during recovery.
func (s *Session) adopt(c *Cycle, o *TrackedOrder) {
	o.CycleID = c.ID
	o.Owner = c.Side
	c.add(o)
	s.track(o)
}
