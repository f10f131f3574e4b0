package indicator

import (
	"fmt"
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"github.com/nirre55/bot-final/internal/market"
)

// Settings describes what Compute needs for one closed candle.
type Settings struct {
	Periods []int
	// OnHA computes the oscillator over Heikin Ashi closes instead of raw closes.
	OnHA          bool
	VolumeEnabled bool
	VolumeWindow  int
}

// Snapshot is the indicator state at the newest closed candle.
type Snapshot struct {
	OpenTime int64
	Close    float64
	RSI      map[int]float64
	HA       HACandle
	Color    Color
	// VolumeOK is true when the volume filter passes or is disabled.
	VolumeOK bool
}

// Compute derives the oscillator values, the Heikin Ashi colour and the
// volume check for the last candle of the window.
func Compute(candles []market.Candle, cfg Settings) (Snapshot, error) {
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("no candles")
	}
	ha := HeikinAshi(candles)
	last := candles[len(candles)-1]
	snap := Snapshot{
		OpenTime: last.OpenTime,
		Close:    last.Close,
		RSI:      make(map[int]float64, len(cfg.Periods)),
		HA:       ha[len(ha)-1],
		VolumeOK: true,
	}
	snap.Color = snap.HA.Color()

	closes := make([]float64, len(candles))
	for i := range candles {
		if cfg.OnHA {
			closes[i] = ha[i].Close
		} else {
			closes[i] = candles[i].Close
		}
	}
	periods := append([]int(nil), cfg.Periods...)
	sort.Ints(periods)
	for _, p := range periods {
		v, ok := RSI(closes, p)
		if !ok {
			return snap, fmt.Errorf("rsi(%d) needs more than %d candles, have %d", p, p, len(closes))
		}
		snap.RSI[p] = v
	}
	if cfg.VolumeEnabled {
		snap.VolumeOK = VolumeAboveMean(candles, cfg.VolumeWindow)
	}
	return snap, nil
}

// RSI returns the latest Wilder RSI of values. ok is false until more than
// period values are available.
func RSI(values []float64, period int) (float64, bool) {
	if period < 2 || len(values) <= period {
		return 0, false
	}
	series := talib.Rsi(values, period)
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// VolumeAboveMean reports whether the newest candle's volume is strictly above
// the mean volume of the window candles before it. With insufficient history
// the check passes.
func VolumeAboveMean(candles []market.Candle, window int) bool {
	if window <= 0 || len(candles) < window+1 {
		return true
	}
	current := candles[len(candles)-1].Volume
	sum := 0.0
	for _, c := range candles[len(candles)-1-window : len(candles)-1] {
		sum += c.Volume
	}
	return current > sum/float64(window)
}
