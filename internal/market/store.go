package market

import (
	"math"
	"sync"
)

// Series is a bounded, append-only window of closed candles for one
// symbol/interval. Safe for concurrent readers.
type Series struct {
	mu      sync.RWMutex
	max     int
	candles []Candle
}

func NewSeries(max int) *Series {
	if max <= 0 {
		max = 500
	}
	return &Series{max: max, candles: make([]Candle, 0, max)}
}

// Append stores a closed candle. Unclosed candles and candles that do not
// advance the open time are ignored; a candle with the same open time as the
// last one replaces it. Returns true when the candle was stored.
func (s *Series) Append(c Candle) bool {
	if !c.Closed {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.candles); n > 0 {
		last := s.candles[n-1]
		switch {
		case c.OpenTime < last.OpenTime:
			return false
		case c.OpenTime == last.OpenTime:
			s.candles[n-1] = c
			return true
		}
	}
	s.candles = append(s.candles, c)
	if len(s.candles) > s.max {
		drop := len(s.candles) - s.max
		s.candles = append(s.candles[:0], s.candles[drop:]...)
	}
	return true
}

// Reset replaces the content, keeping only closed candles.
func (s *Series) Reset(candles []Candle) {
	s.mu.Lock()
	s.candles = s.candles[:0]
	s.mu.Unlock()
	for _, c := range candles {
		c.Closed = true
		s.Append(c)
	}
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// Last returns a copy of the newest n candles (fewer when history is short).
func (s *Series) Last(n int) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.candles) == 0 {
		return nil
	}
	if n > len(s.candles) {
		n = len(s.candles)
	}
	out := make([]Candle, n)
	copy(out, s.candles[len(s.candles)-n:])
	return out
}

func (s *Series) All() []Candle {
	return s.Last(s.Len())
}

// Extremes returns the lowest low and highest high of the newest lookback
// candles. ok is false until the series holds lookback candles.
func (s *Series) Extremes(lookback int) (low, high float64, ok bool) {
	window := s.Last(lookback)
	if lookback <= 0 || len(window) < lookback {
		return 0, 0, false
	}
	low, high = math.Inf(1), math.Inf(-1)
	for _, c := range window {
		low = math.Min(low, c.Low)
		high = math.Max(high, c.High)
	}
	return low, high, true
}
