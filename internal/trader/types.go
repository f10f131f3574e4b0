package trader

import (
	"time"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/signal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/types"
)

// EventType names what arrives on the execution channel.
type EventType string

const (
	// Stream events
	EvtExecution   EventType = "EXECUTION"
	EvtAccount     EventType = "ACCOUNT"
	EvtReconnected EventType = "RECONNECTED"

	// Dispatcher results fed back into the loop
	EvtOrderResult EventType = "ORDER_RESULT"
	EvtPosition    EventType = "POSITION"
	EvtSnapshot    EventType = "SNAPSHOT"
)

// EventEnvelope is the single message type of the execution channel.
type EventEnvelope struct {
	ID        string
	Type      EventType
	CreatedAt time.Time

	Execution *exchange.ExecutionReport
	Account   *exchange.AccountUpdate
	Result    *OrderResult
	Position  *PositionResult
	Snapshot  *SnapshotResult
}

// OrderResult is the outcome of one placement attempt sequence.
type OrderResult struct {
	Order    *strategy.TrackedOrder
	Ack      exchange.OrderAck
	Err      error
	Attempts int
}

type PositionResult struct {
	Side      types.Side
	Positions []types.PositionSnapshot
	Err       error
}

type SnapshotResult struct {
	Reason   string
	Snapshot exchange.Snapshot
	Err      error
}

// Status is a read-only picture of the trader for the status API.
type Status struct {
	Symbol      string                   `json:"symbol"`
	Interval    string                   `json:"interval"`
	Variant     strategy.Variant         `json:"variant"`
	Blocked     bool                     `json:"blocked"`
	BlockReason string                   `json:"block_reason,omitempty"`
	TradingOpen bool                     `json:"trading_open"`
	Hours       string                   `json:"trading_hours"`
	SignalState signal.State             `json:"signal_state"`
	Account     types.AccountSnapshot    `json:"account"`
	Positions   []types.PositionSnapshot `json:"positions"`
	Cycles      []strategy.View          `json:"cycles"`
	Tracked     int                      `json:"tracked_orders"`
	Candles     int                      `json:"candles"`
	LastCandle  time.Time                `json:"last_candle,omitempty"`
	Market      market.SourceStats       `json:"market"`
	Pending     PendingStats             `json:"pending"`
}

// PendingStats reports queue depth and in-flight dispatches.
type PendingStats struct {
	Candles    int   `json:"candles"`
	Executions int   `json:"executions"`
	InFlight   int64 `json:"in_flight"`
}
