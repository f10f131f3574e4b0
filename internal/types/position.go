package types

import (
	"time"
)

// Signal is a confirmed entry signal. Created once, consumed once.
type Signal struct {
	ID             string    `json:"id"`
	Direction      Side      `json:"direction"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
	ReferencePrice float64   `json:"reference_price"`
}

// PositionSnapshot is the exchange view of one side of a hedge-mode position.
type PositionSnapshot struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

func (p PositionSnapshot) Open() bool { return p.Quantity > 0 }

type AccountSnapshot struct {
	Asset     string    `json:"asset"`
	Balance   float64   `json:"balance"`
	Available float64   `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}
