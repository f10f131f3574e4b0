package market

import "time"

// Candle is one kline. Times are milliseconds since epoch.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
	Closed    bool    `json:"closed"`
}

func (c Candle) CloseAt() time.Time {
	return time.UnixMilli(c.CloseTime).UTC()
}

// Bullish reports a green body, Bearish a red one. A doji is neither.
func (c Candle) Bullish() bool { return c.Close > c.Open }
func (c Candle) Bearish() bool { return c.Close < c.Open }
