package strategy

import (
	"time"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/types"
)

// Role is what a tracked order does inside its cycle.
type Role string

const (
	RoleSignal    Role = "SIGNAL"
	RoleHedge     Role = "HEDGE"
	RoleCascade   Role = "CASCADE"
	RoleTPSignal  Role = "TP_SIGNAL"
	RoleTPHedge   Role = "TP_HEDGE"
	RoleCrossStop Role = "CROSS_STOP"
	RoleSL        Role = "SL"
	RoleClose     Role = "CLOSE"
)

// Target reports whether the role is a take-profit.
func (r Role) Target() bool { return r == RoleTPSignal || r == RoleTPHedge }

// Closing reports whether a fill of this role reduces a position.
func (r Role) Closing() bool {
	switch r {
	case RoleTPSignal, RoleTPHedge, RoleCrossStop, RoleSL, RoleClose:
		return true
	}
	return false
}

type OrderState string

const (
	OrderPending  OrderState = "PENDING"
	OrderOpen     OrderState = "OPEN"
	OrderFilled   OrderState = "FILLED"
	OrderCanceled OrderState = "CANCELED"
	OrderFailed   OrderState = "FAILED"
)

// TrackedOrder is owned by the engine that created it until it reaches a
// terminal state; the router then dispatches it exactly once.
type TrackedOrder struct {
	ClientID     string             `json:"client_id"`
	OrderID      string             `json:"order_id,omitempty"`
	CycleID      string             `json:"cycle_id"`
	Owner        types.Side         `json:"owner"`
	Role         Role               `json:"role"`
	Side         string             `json:"side"`
	PositionSide types.Side         `json:"position_side"`
	Type         exchange.OrderType `json:"type"`
	Quantity     float64            `json:"quantity"`
	TriggerPrice float64            `json:"trigger_price,omitempty"`
	LimitPrice   float64            `json:"limit_price,omitempty"`
	State        OrderState         `json:"state"`
	FilledQty    float64            `json:"filled_qty,omitempty"`
	FillPrice    float64            `json:"fill_price,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	FilledAt     time.Time          `json:"filled_at,omitempty"`

	CancelRequested bool `json:"cancel_requested,omitempty"`
	Consumed        bool `json:"consumed,omitempty"`

	// Retry overrides the dispatcher's default policy for this placement.
	Retry *RetryOverride `json:"-"`
}

type RetryOverride struct {
	Attempts int
	Delay    time.Duration
}

// Live reports whether the order may still fill.
func (o *TrackedOrder) Live() bool {
	return o.State == OrderPending || o.State == OrderOpen
}

// Request renders the venue order for symbol.
func (o *TrackedOrder) Request(symbol string) exchange.OrderRequest {
	return exchange.OrderRequest{
		Symbol:        symbol,
		Side:          o.Side,
		PositionSide:  o.PositionSide,
		Type:          o.Type,
		Quantity:      o.Quantity,
		StopPrice:     o.TriggerPrice,
		Price:         o.LimitPrice,
		ClientOrderID: o.ClientID,
	}
}

// ActionKind enumerates what an engine can ask the dispatcher to do.
type ActionKind string

const (
	ActionPlace         ActionKind = "place"
	ActionCancel        ActionKind = "cancel"
	ActionQueryPosition ActionKind = "query_position"
	ActionSettle        ActionKind = "settle"
	ActionResync        ActionKind = "resync"
)

// Action is a side effect requested by an engine. Engines never call the
// venue themselves.
type Action struct {
	Kind       ActionKind
	Order      *TrackedOrder
	Side       types.Side
	Settlement *Settlement
	Reason     string
}

// Settlement describes a closed cycle whose realized income must be booked.
type Settlement struct {
	CycleID   string     `json:"cycle_id"`
	Symbol    string     `json:"symbol"`
	Variant   Variant    `json:"variant"`
	Side      types.Side `json:"side"`
	StartedAt time.Time  `json:"started_at"`
	ClosedAt  time.Time  `json:"closed_at"`
	WorstCase bool       `json:"worst_case"`
	Recovery  bool       `json:"recovery"`
	Reason    string     `json:"reason"`
}

func place(o *TrackedOrder) Action { return Action{Kind: ActionPlace, Order: o} }

func cancel(o *TrackedOrder, reason string) Action {
	o.CancelRequested = true
	return Action{Kind: ActionCancel, Order: o, Reason: reason}
}
