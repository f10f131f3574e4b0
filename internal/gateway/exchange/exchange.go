// Package exchange is the contract between the strategy core and a
// derivatives venue: order placement, account queries and the order stream.
package exchange

import (
	"context"
	"time"

	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

// Gateway is the REST collaborator. Every call may block on the network, so
// the trader only ever invokes it from dispatcher goroutines.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)

	// CancelOrder accepts either id; the client id covers orders whose
	// placement has not been acknowledged yet.
	CancelOrder(ctx context.Context, symbol, orderID, clientOrderID string) error

	GetPosition(ctx context.Context, symbol string) ([]types.PositionSnapshot, error)

	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	// QueryOrder reports the current state of one order as an execution
	// report, used to settle orders whose stream updates were missed.
	QueryOrder(ctx context.Context, symbol, orderID, clientOrderID string) (ExecutionReport, error)

	GetRealizedIncome(ctx context.Context, symbol string, since time.Time) ([]Income, error)

	GetBalance(ctx context.Context, asset string) (types.AccountSnapshot, error)

	SymbolFilters(ctx context.Context, symbol string) (sizing.Filters, error)
}

// OrderStream delivers execution reports and account updates in arrival
// order. Reconnects are handled inside and surfaced as StreamReconnected.
type OrderStream interface {
	Start(ctx context.Context) (<-chan StreamEvent, error)

	Close() error
}

// Snapshot is the full venue view used by recovery.
type Snapshot struct {
	Positions  []types.PositionSnapshot
	OpenOrders []OpenOrder
	Account    types.AccountSnapshot
	TakenAt    time.Time
}

// LoadSnapshot queries positions, open orders and balance in turn.
func LoadSnapshot(ctx context.Context, gw Gateway, symbol, asset string) (Snapshot, error) {
	positions, err := gw.GetPosition(ctx, symbol)
	if err != nil {
		return Snapshot{}, err
	}
	orders, err := gw.GetOpenOrders(ctx, symbol)
	if err != nil {
		return Snapshot{}, err
	}
	account, err := gw.GetBalance(ctx, asset)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Positions:  positions,
		OpenOrders: orders,
		Account:    account,
		TakenAt:    time.Now(),
	}, nil
}

// Position returns the snapshot entry for side, zero when flat.
func (s Snapshot) Position(side types.Side) types.PositionSnapshot {
	for _, p := range s.Positions {
		if p.Side == side {
			return p
		}
	}
	return types.PositionSnapshot{Side: side}
}

// OrdersFor returns open orders acting on the given position side.
func (s Snapshot) OrdersFor(side types.Side) []OpenOrder {
	var out []OpenOrder
	for _, o := range s.OpenOrders {
		if o.PositionSide == side {
			out = append(out, o)
		}
	}
	return out
}
