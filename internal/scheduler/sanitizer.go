package scheduler

import (
	"time"

	"github.com/nirre55/bot-final/internal/market"
)

// KlineGrace is how long after its nominal close a kline is still treated
// as possibly in progress.
const KlineGrace = 10 * time.Second

// DropUnclosed removes the trailing kline when it is still the current one.
// REST history includes the in-progress candle as its last element.
func DropUnclosed(klines []market.Candle, interval time.Duration) []market.Candle {
	return dropUnclosedAt(klines, interval, time.Now(), KlineGrace)
}

func dropUnclosedAt(klines []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if len(klines) == 0 || interval <= 0 {
		return klines
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	cutoff := last.OpenTime + interval.Milliseconds() + max(grace, 0).Milliseconds()
	if now.UnixMilli() < cutoff {
		return klines[:len(klines)-1]
	}
	return klines
}
