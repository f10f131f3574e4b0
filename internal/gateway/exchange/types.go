package exchange

import (
	"time"

	"github.com/nirre55/bot-final/internal/types"
)

type OrderType string

const (
	OrderMarket     OrderType = "MARKET"
	OrderStop       OrderType = "STOP"
	OrderStopMarket OrderType = "STOP_MARKET"
	OrderTakeProfit OrderType = "TAKE_PROFIT"
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether no further fills can follow.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// OrderRequest describes one hedge-mode order. Side is the order side
// (BUY/SELL); PositionSide is the leg it acts on.
type OrderRequest struct {
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	PositionSide  types.Side `json:"position_side"`
	Type          OrderType  `json:"type"`
	Quantity      float64    `json:"quantity"`
	StopPrice     float64    `json:"stop_price,omitempty"`
	Price         float64    `json:"price,omitempty"`
	ClientOrderID string     `json:"client_order_id"`
}

type OrderAck struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Status        OrderStatus `json:"status"`
	AvgPrice      float64     `json:"avg_price"`
	ExecutedQty   float64     `json:"executed_qty"`
}

// OpenOrder is a resting order as reported by the venue.
type OpenOrder struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Side          string      `json:"side"`
	PositionSide  types.Side  `json:"position_side"`
	Type          OrderType   `json:"type"`
	Quantity      float64     `json:"quantity"`
	StopPrice     float64     `json:"stop_price"`
	Price         float64     `json:"price"`
	Status        OrderStatus `json:"status"`
}

// Reducing reports whether the order closes part of its position side.
func (o OpenOrder) Reducing() bool {
	return o.Side == o.PositionSide.CloseSide()
}

type Income struct {
	Time   time.Time `json:"time"`
	Amount float64   `json:"amount"`
	Type   string    `json:"type"`
}

// SumIncome adds up the amounts at or after since.
func SumIncome(items []Income, since time.Time) float64 {
	var total float64
	for _, it := range items {
		if it.Time.Before(since) {
			continue
		}
		total += it.Amount
	}
	return total
}

// ExecutionReport carries the order-stream fields the core relies on.
type ExecutionReport struct {
	Symbol              string      `json:"symbol"`
	OrderID             string      `json:"order_id"`
	ClientOrderID       string      `json:"client_order_id"`
	Side                string      `json:"side"`
	PositionSide        types.Side  `json:"position_side"`
	OrderType           OrderType   `json:"order_type"`
	Status              OrderStatus `json:"status"`
	ExecutionType       string      `json:"execution_type"`
	CumulativeFilledQty float64     `json:"cumulative_filled_qty"`
	LastFillPrice       float64     `json:"last_fill_price"`
	AveragePrice        float64     `json:"average_price"`
	RealizedProfit      float64     `json:"realized_profit"`
	EventTime           time.Time   `json:"event_time"`
}

// FillPrice prefers the average price, which covers multi-fill orders.
func (r ExecutionReport) FillPrice() float64 {
	if r.AveragePrice > 0 {
		return r.AveragePrice
	}
	return r.LastFillPrice
}

type AccountUpdate struct {
	Balances  map[string]float64       `json:"balances"`
	Positions []types.PositionSnapshot `json:"positions"`
	EventTime time.Time                `json:"event_time"`
}

type StreamEventKind string

const (
	StreamExecution   StreamEventKind = "execution"
	StreamAccount     StreamEventKind = "account"
	StreamReconnected StreamEventKind = "reconnected"
)

type StreamEvent struct {
	Kind      StreamEventKind
	Execution *ExecutionReport
	Account   *AccountUpdate
}
