package indicator

import (
	"math"

	"github.com/nirre55/bot-final/internal/market"
)

type Color int

const (
	ColorDoji Color = iota
	ColorGreen
	ColorRed
)

func (c Color) String() string {
	switch c {
	case ColorGreen:
		return "green"
	case ColorRed:
		return "red"
	default:
		return "doji"
	}
}

type HACandle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

func (h HACandle) Color() Color {
	switch {
	case h.Close > h.Open:
		return ColorGreen
	case h.Close < h.Open:
		return ColorRed
	default:
		return ColorDoji
	}
}

// HeikinAshi transforms raw candles. The first open is seeded from the raw
// candle's open/close midpoint.
func HeikinAshi(candles []market.Candle) []HACandle {
	out := make([]HACandle, len(candles))
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		var haOpen float64
		if i == 0 {
			haOpen = (c.Open + c.Close) / 2
		} else {
			haOpen = (out[i-1].Open + out[i-1].Close) / 2
		}
		out[i] = HACandle{
			Open:  haOpen,
			Close: haClose,
			High:  math.Max(c.High, math.Max(haOpen, haClose)),
			Low:   math.Min(c.Low, math.Min(haOpen, haClose)),
		}
	}
	return out
}
