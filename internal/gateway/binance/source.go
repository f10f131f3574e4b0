package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/pkg/retry"
	"github.com/nirre55/bot-final/internal/pkg/symbol"
	"github.com/nirre55/bot-final/internal/scheduler"
)

const maxHistoryLimit = 1500

// Source implements market.Source with the SDK kline endpoints.
type Source struct {
	client *futures.Client

	mu      sync.Mutex
	cancels []context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats

	serve func(sym, interval string, h futures.WsKlineHandler, eh futures.ErrHandler) (chan struct{}, chan struct{}, error)
}

var _ market.Source = (*Source)(nil)

func NewSource(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client, err := newFuturesClient(final)
	if err != nil {
		return nil, err
	}
	if final.Testnet {
		futures.UseTestnet = true
	}
	if final.ProxyEnabled && final.WSProxyURL != "" {
		futures.SetWsProxyUrl(final.WSProxyURL)
	}
	return &Source{client: client, serve: futures.WsKlineServe}, nil
}

func (s *Source) FetchHistory(ctx context.Context, sym, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	venue := symbol.Normalize(sym)
	if venue == "" {
		return nil, fmt.Errorf("invalid symbol %q", sym)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	dur, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	kls, err := s.client.NewKlinesService().Symbol(venue).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
			Closed:    true,
		})
	}
	return scheduler.DropUnclosed(out, dur), nil
}

// Subscribe streams every kline update for one symbol and interval; only
// events with the final flag carry Closed. The stream reconnects with
// capped exponential backoff until ctx ends or Close is called.
func (s *Source) Subscribe(ctx context.Context, sym, interval string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	venue := symbol.Normalize(sym)
	if venue == "" {
		return nil, fmt.Errorf("invalid symbol %q", sym)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if _, ok := scheduler.ParseIntervalDuration(interval); !ok {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan market.CandleEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runKlineLoop(subCtx, venue, interval, out, opts)
	}()
	return out, nil
}

func (s *Source) runKlineLoop(ctx context.Context, venue, interval string, out chan<- market.CandleEvent, opts market.SubscribeOptions) {
	wait := retry.Backoff{Min: time.Second, Max: 30 * time.Second}
	for ctx.Err() == nil {
		session := &klineSession{ctx: ctx, out: out}
		doneC, stopC, err := s.serve(venue, interval, session.handle, session.fail)
		if err != nil {
			s.recordSubscribeError(err)
			notifyDisconnect(opts, err)
			if !wait.Wait(ctx) {
				return
			}
			continue
		}
		wait.Reset()
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		cause := session.err()
		s.recordReconnect(cause)
		logger.Warnf("[binance] kline stream %s %s dropped: %v", venue, interval, cause)
		notifyDisconnect(opts, cause)
		if !wait.Wait(ctx) {
			return
		}
	}
}

// klineSession carries the state of one websocket connection.
type klineSession struct {
	ctx context.Context
	out chan<- market.CandleEvent

	mu      sync.Mutex
	lastErr error
}

func (k *klineSession) handle(event *futures.WsKlineEvent) {
	ce, ok := convertKlineEvent(event)
	if !ok {
		return
	}
	if ce.Candle.Closed {
		select {
		case <-k.ctx.Done():
		case k.out <- ce:
		}
		return
	}
	select {
	case k.out <- ce:
	default:
		logger.Debugf("[binance] kline buffer full, skip partial %s %s", ce.Symbol, ce.Interval)
	}
}

func (k *klineSession) fail(err error) {
	if err == nil {
		return
	}
	k.mu.Lock()
	k.lastErr = err
	k.mu.Unlock()
}

func (k *klineSession) err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastErr
}

func notifyDisconnect(opts market.SubscribeOptions, err error) {
	if opts.OnDisconnect != nil {
		opts.OnDisconnect(err)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	return nil
}

func convertKlineEvent(ev *futures.WsKlineEvent) (market.CandleEvent, bool) {
	if ev == nil {
		return market.CandleEvent{}, false
	}
	sym := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	interval := strings.ToLower(strings.TrimSpace(ev.Kline.Interval))
	if sym == "" || interval == "" {
		return market.CandleEvent{}, false
	}
	return market.CandleEvent{
		Symbol:   sym,
		Interval: interval,
		Candle: market.Candle{
			OpenTime:  ev.Kline.StartTime,
			CloseTime: ev.Kline.EndTime,
			Open:      parseFloat(ev.Kline.Open),
			High:      parseFloat(ev.Kline.High),
			Low:       parseFloat(ev.Kline.Low),
			Close:     parseFloat(ev.Kline.Close),
			Volume:    parseFloat(ev.Kline.Volume),
			Trades:    ev.Kline.TradeNum,
			Closed:    ev.Kline.IsFinal,
		},
	}, true
}

func (s *Source) recordSubscribeError(err error) {
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}
