package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/nirre55/bot-final/internal/logger"
)

// Feed warms a Series from REST history and then forwards every closed
// candle from the stream to OnClosed, in arrival order. Candles that are
// not newer than the last one forwarded are skipped; the Series itself is
// only touched by Preheat.
type Feed struct {
	Source   Source
	Series   *Series
	Symbol   string
	Interval string
	Limit    int

	OnConnected    func()
	OnDisconnected func(error)
	// OnClosed receives each new closed candle; an error stops the feed.
	OnClosed func(Candle) error

	startOnce sync.Once
	lastOpen  int64
}

type FeedOption func(*Feed)

func WithFeedCallbacks(onConnect func(), onDisconnect func(error)) FeedOption {
	return func(f *Feed) {
		f.OnConnected = onConnect
		f.OnDisconnected = onDisconnect
	}
}

func NewFeed(src Source, series *Series, symbol, interval string, limit int, onClosed func(Candle) error, opts ...FeedOption) *Feed {
	f := &Feed{Source: src, Series: series, Symbol: symbol, Interval: interval, Limit: limit, OnClosed: onClosed}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Preheat loads the most recent closed candles into the series.
func (f *Feed) Preheat(ctx context.Context) error {
	if f.Source == nil || f.Series == nil {
		return fmt.Errorf("feed missing source or series")
	}
	batch, err := f.Source.FetchHistory(ctx, f.Symbol, f.Interval, f.Limit)
	if err != nil {
		return fmt.Errorf("preheat %s %s: %w", f.Symbol, f.Interval, err)
	}
	f.Series.Reset(batch)
	if last := f.Series.Last(1); len(last) == 1 {
		f.lastOpen = last[0].OpenTime
	}
	logger.Infof("[feed] preheated %s %s with %d candles", f.Symbol, f.Interval, f.Series.Len())
	return nil
}

// Start subscribes and consumes the stream until ctx is done or OnClosed
// fails. It blocks.
func (f *Feed) Start(ctx context.Context) error {
	if f.Source == nil {
		return fmt.Errorf("feed missing source")
	}
	err := fmt.Errorf("feed %s %s already started", f.Symbol, f.Interval)
	f.startOnce.Do(func() {
		var events <-chan CandleEvent
		events, err = f.Source.Subscribe(ctx, f.Symbol, f.Interval, SubscribeOptions{
			OnConnect:    f.OnConnected,
			OnDisconnect: f.OnDisconnected,
		})
		if err != nil {
			return
		}
		logger.Infof("[feed] subscribed %s %s", f.Symbol, f.Interval)
		err = f.consume(ctx, events)
	})
	return err
}

func (f *Feed) consume(ctx context.Context, events <-chan CandleEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if !evt.Candle.Closed {
				continue
			}
			if evt.Candle.OpenTime <= f.lastOpen {
				logger.Debugf("[feed] stale candle %d ignored", evt.Candle.OpenTime)
				continue
			}
			f.lastOpen = evt.Candle.OpenTime
			if f.OnClosed == nil {
				continue
			}
			if err := f.OnClosed(evt.Candle); err != nil {
				return err
			}
		}
	}
}
