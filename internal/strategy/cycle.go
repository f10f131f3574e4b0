package strategy

import (
	"time"

	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

type CycleState string

const (
	StateInactive           CycleState = "INACTIVE"
	StateAwaitingProtection CycleState = "AWAITING_PROTECTION"
	StateActive             CycleState = "ACTIVE"
	StateWaitingCapital     CycleState = "WAITING_CAPITAL"
	StateStopped            CycleState = "STOPPED"
)

// CloseFill records a position-reducing fill.
type CloseFill struct {
	Role         Role       `json:"role"`
	PositionSide types.Side `json:"position_side"`
	Price        float64    `json:"price"`
	Quantity     float64    `json:"quantity"`
	At           time.Time  `json:"at"`
}

// Cycle is the state of one position cycle, keyed by the side of the signal
// that opened it. Entry and hedge prices are fixed once set.
type Cycle struct {
	ID        string       `json:"id"`
	Variant   Variant      `json:"variant"`
	Side      types.Side   `json:"side"`
	State     CycleState   `json:"state"`
	Signal    types.Signal `json:"signal"`
	Plan      sizing.Plan  `json:"plan"`
	StartedAt time.Time    `json:"started_at"`

	EntryPrice float64 `json:"entry_price"`
	HedgePrice float64 `json:"hedge_price"`
	StopPrice  float64 `json:"stop_price,omitempty"`
	Distance   float64 `json:"distance"`

	PositionCount    int                    `json:"position_count"`
	OrderCount       int                    `json:"order_count"`
	Accumulations    int                    `json:"accumulations,omitempty"`
	Filled           map[types.Side]float64 `json:"filled"`
	AvgFill          map[types.Side]float64 `json:"avg_fill"`
	ProtectionFilled bool                   `json:"protection_filled"`
	Closing          bool                   `json:"closing,omitempty"`
	Recovered        bool                   `json:"recovered,omitempty"`
	Closes           []CloseFill            `json:"closes,omitempty"`
	StopReason       string                 `json:"stop_reason,omitempty"`

	Orders []*TrackedOrder `json:"orders"`
}

func newCycle(id string, v Variant, sig types.Signal, plan sizing.Plan, now time.Time) *Cycle {
	return &Cycle{
		ID:        id,
		Variant:   v,
		Side:      sig.Direction,
		State:     StateAwaitingProtection,
		Signal:    sig,
		Plan:      plan,
		StartedAt: now,
		Filled:    map[types.Side]float64{},
		AvgFill:   map[types.Side]float64{},
	}
}

func (c *Cycle) SetEntry(price float64) {
	if c.EntryPrice == 0 && price > 0 {
		c.EntryPrice = price
	}
}

func (c *Cycle) SetHedge(price float64) {
	if c.HedgePrice == 0 && price > 0 {
		c.HedgePrice = price
	}
}

// ReferencePrice is the fixed price target math starts from for a leg.
func (c *Cycle) ReferencePrice(leg types.Side) float64 {
	if leg == c.Side {
		return c.EntryPrice
	}
	return c.HedgePrice
}

// addFill books an opening fill and keeps the per-leg average price.
func (c *Cycle) addFill(leg types.Side, qty, price float64) {
	if qty <= 0 {
		return
	}
	prev := c.Filled[leg]
	total := prev + qty
	if price > 0 {
		c.AvgFill[leg] = (c.AvgFill[leg]*prev + price*qty) / total
	}
	c.Filled[leg] = total
}

func (c *Cycle) recordClose(o *TrackedOrder) {
	c.Closes = append(c.Closes, CloseFill{
		Role:         o.Role,
		PositionSide: o.PositionSide,
		Price:        o.FillPrice,
		Quantity:     o.FilledQty,
		At:           o.FilledAt,
	})
	c.Filled[o.PositionSide] -= o.FilledQty
	if c.Filled[o.PositionSide] < 1e-12 {
		c.Filled[o.PositionSide] = 0
	}
}

func (c *Cycle) add(o *TrackedOrder) { c.Orders = append(c.Orders, o) }

// live returns the newest live order with role on leg.
func (c *Cycle) live(role Role, leg types.Side) *TrackedOrder {
	for i := len(c.Orders) - 1; i >= 0; i-- {
		o := c.Orders[i]
		if o.Role == role && o.PositionSide == leg && o.Live() && !o.CancelRequested {
			return o
		}
	}
	return nil
}

func (c *Cycle) LiveOrders() []*TrackedOrder {
	var out []*TrackedOrder
	for _, o := range c.Orders {
		if o.Live() {
			out = append(out, o)
		}
	}
	return out
}

func (c *Cycle) hasFills() bool {
	for _, q := range c.Filled {
		if q > 0 {
			return true
		}
	}
	return len(c.Closes) > 0
}

// Open reports whether the cycle still holds its slot.
func (c *Cycle) Open() bool { return c != nil && c.State != StateInactive }

// WorstCase matches the losing shape of the asymmetric hedge: the protective
// order filled, the entry-side target filled first, and the other leg closed
// within window.
func (c *Cycle) WorstCase(window time.Duration) bool {
	if c.Variant != VariantOneOrMore || !c.ProtectionFilled || len(c.Closes) < 2 {
		return false
	}
	first := c.Closes[0]
	if first.Role != RoleTPSignal || first.PositionSide != c.Side {
		return false
	}
	last := c.Closes[len(c.Closes)-1]
	return last.At.Sub(first.At) <= window
}

// View is a read-only copy for status output and persistence.
type View struct {
	ID            string                 `json:"id"`
	Variant       Variant                `json:"variant"`
	Side          types.Side             `json:"side"`
	State         CycleState             `json:"state"`
	EntryPrice    float64                `json:"entry_price"`
	HedgePrice    float64                `json:"hedge_price"`
	StopPrice     float64                `json:"stop_price,omitempty"`
	Distance      float64                `json:"distance"`
	PositionCount int                    `json:"position_count"`
	OrderCount    int                    `json:"order_count"`
	Filled        map[types.Side]float64 `json:"filled"`
	Quantity      float64                `json:"quantity"`
	Recovery      bool                   `json:"recovery"`
	StartedAt     time.Time              `json:"started_at"`
	StopReason    string                 `json:"stop_reason,omitempty"`
	LiveOrders    []TrackedOrder         `json:"live_orders"`
}

func (c *Cycle) View() View {
	filled := make(map[types.Side]float64, len(c.Filled))
	for k, v := range c.Filled {
		filled[k] = v
	}
	var live []TrackedOrder
	for _, o := range c.LiveOrders() {
		live = append(live, *o)
	}
	return View{
		ID:            c.ID,
		Variant:       c.Variant,
		Side:          c.Side,
		State:         c.State,
		EntryPrice:    c.EntryPrice,
		HedgePrice:    c.HedgePrice,
		StopPrice:     c.StopPrice,
		Distance:      c.Distance,
		PositionCount: c.PositionCount,
		OrderCount:    c.OrderCount,
		Filled:        filled,
		Quantity:      c.Plan.Quantity,
		Recovery:      c.Plan.Recovery,
		StartedAt:     c.StartedAt,
		StopReason:    c.StopReason,
		LiveOrders:    live,
	}
}
