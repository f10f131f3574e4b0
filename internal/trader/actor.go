package trader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nirre55/bot-final/internal/analysis/indicator"
	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/pkg/retry"
	"github.com/nirre55/bot-final/internal/scheduler"
	"github.com/nirre55/bot-final/internal/signal"
	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/types"
)

// Options carries the collaborators of a Trader. Source, Stream, Ledger,
// History and Journal are optional.
type Options struct {
	Interval     string
	HistoryLimit int

	Engine    strategy.Engine
	Session   *strategy.Session
	Gateway   exchange.Gateway
	Source    market.Source
	Stream    exchange.OrderStream
	Signals   *signal.Machine
	Indicator indicator.Settings
	Hours     scheduler.Window

	Ledger  LossLedger
	History store.HistoryStore
	Journal EventStore

	Retry  config.RetryConfig
	Events config.EventsConfig

	// AccountRefresh is the balance polling period; zero disables polling.
	AccountRefresh time.Duration
	// SettleDelay lets the venue book income before a settlement reads it.
	SettleDelay time.Duration
}

// Trader is the event-driven core. Candles and execution events arrive on
// two bounded channels, each drained in order by its own goroutine. Cycle
// state is only touched under the session's per-side locks, and every
// venue call runs in a dispatcher goroutine whose result comes back as an
// event.
type Trader struct {
	interval string

	engine    strategy.Engine
	session   *strategy.Session
	gateway   exchange.Gateway
	source    market.Source
	feed      *market.Feed
	stream    exchange.OrderStream
	signals   *signal.Machine
	indicator indicator.Settings
	hours     atomic.Pointer[scheduler.Window]

	ledger  LossLedger
	history store.HistoryStore
	journal EventStore

	orderRetry  retry.Policy
	settleRetry retry.Policy
	syncRetry   retry.Policy

	eventRegistry *HandlerRegistry

	candleCh chan market.CandleEvent
	execCh   chan EventEnvelope
	stopCh   chan struct{}
	stopOnce sync.Once

	inflight        sync.WaitGroup
	inflightCount   atomic.Int64
	shutdownTimeout time.Duration
	accountRefresh  time.Duration
	settleDelay     time.Duration

	blocked     atomic.Bool
	blockReason atomic.Value
	resyncing   atomic.Bool
	signalState atomic.Value
	lastCandle  atomic.Int64

	now func() time.Time
}

func New(opts Options) (*Trader, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("trader: engine is required")
	case opts.Session == nil:
		return nil, errors.New("trader: session is required")
	case opts.Gateway == nil:
		return nil, errors.New("trader: gateway is required")
	case opts.Signals == nil:
		return nil, errors.New("trader: signal machine is required")
	}
	candleBuf := opts.Events.CandleBuffer
	if candleBuf <= 0 {
		candleBuf = 64
	}
	execBuf := opts.Events.ExecutionBuffer
	if execBuf <= 0 {
		execBuf = 256
	}
	shutdown := opts.Events.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	attempts := opts.Retry.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	reg := NewHandlerRegistry()
	reg.RegisterDefaultHandlers()

	t := &Trader{
		interval:        opts.Interval,
		engine:          opts.Engine,
		session:         opts.Session,
		gateway:         opts.Gateway,
		source:          opts.Source,
		stream:          opts.Stream,
		signals:         opts.Signals,
		indicator:       opts.Indicator,
		ledger:          opts.Ledger,
		history:         opts.History,
		journal:         opts.Journal,
		orderRetry:      retry.Fixed(attempts, opts.Retry.Delay, exchange.Retryable),
		settleRetry:     retry.Linear(attempts, time.Second, exchange.Retryable),
		syncRetry:       retry.Exponential(5, 500*time.Millisecond, 10*time.Second, exchange.Retryable),
		eventRegistry:   reg,
		candleCh:        make(chan market.CandleEvent, candleBuf),
		execCh:          make(chan EventEnvelope, execBuf),
		stopCh:          make(chan struct{}),
		shutdownTimeout: shutdown,
		accountRefresh:  opts.AccountRefresh,
		settleDelay:     opts.SettleDelay,
		now:             opts.Session.Now,
	}
	if opts.Source != nil {
		t.feed = market.NewFeed(opts.Source, opts.Session.Series(), opts.Session.Symbol, opts.Interval, opts.HistoryLimit, nil,
			market.WithFeedCallbacks(
				func() { logger.Infof("Trader: %s %s candle stream connected", opts.Session.Symbol, opts.Interval) },
				func(err error) { logger.Warnf("Trader: candle stream dropped: %v", err) },
			))
	}
	t.SetTradingHours(opts.Hours)
	t.blockReason.Store("")
	t.signalState.Store(opts.Signals.State())
	return t, nil
}

// Run starts the trader and blocks until ctx ends. Startup failures of the
// recovery path leave the trader blocked instead of failing Run.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.candleLoop(gctx) })
	g.Go(func() error { return t.execLoop(gctx) })
	if t.feed != nil {
		t.feed.OnClosed = func(c market.Candle) error {
			return t.SubmitCandle(gctx, market.CandleEvent{Symbol: t.session.Symbol, Interval: t.interval, Candle: c})
		}
		g.Go(func() error {
			if err := t.feed.Start(gctx); err != nil {
				return fmt.Errorf("candle feed: %w", err)
			}
			return nil
		})
	}
	if t.stream != nil {
		g.Go(func() error {
			events, err := t.stream.Start(gctx)
			if err != nil {
				return fmt.Errorf("start order stream: %w", err)
			}
			return t.pumpStream(gctx, events)
		})
	}
	if t.accountRefresh > 0 {
		g.Go(func() error {
			sched := scheduler.NewAligned("account-refresh", t.accountRefresh, 0)
			sched.Run(gctx, t.refreshAccount)
			return nil
		})
	}
	err := g.Wait()
	t.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start loads symbol filters, balance and candle history, then runs
// recovery against a venue snapshot before any signal is accepted.
func (t *Trader) Start(ctx context.Context) error {
	f, err := t.gateway.SymbolFilters(ctx, t.session.Symbol)
	if err != nil {
		return fmt.Errorf("load symbol filters: %w", err)
	}
	t.session.SetFilters(f)
	logger.Infof("Trader: %s filters minQty=%g step=%g tick=%g", t.session.Symbol, f.MinQty, f.StepSize, f.TickSize)
	t.refreshAccount(ctx)

	if t.feed != nil {
		if err := t.feed.Preheat(ctx); err != nil {
			return err
		}
	}

	var snap exchange.Snapshot
	_, err = t.syncRetry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		snap, err = exchange.LoadSnapshot(ctx, t.gateway, t.session.Symbol, t.session.Asset)
		return err
	})
	if err != nil {
		t.block(fmt.Sprintf("startup reconciliation failed: %v", err))
		return nil
	}
	t.applySnapshot(SnapshotResult{Reason: "startup", Snapshot: snap})
	return nil
}

func (t *Trader) candleLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-t.candleCh:
			t.safely("candle", func() { t.handleCandle(ev) })
		}
	}
}

func (t *Trader) execLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-t.execCh:
			t.handleEvent(evt)
		}
	}
}

// safely keeps one bad event from taking a loop down.
func (t *Trader) safely(what string, fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Trader panic handling %s: %v\n%s", what, r, debug.Stack())
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("Slow event %s took %v", what, dur)
		}
	}()
	fn()
}

func (t *Trader) handleEvent(evt EventEnvelope) {
	t.safely(string(evt.Type), func() {
		handler, ok := t.eventRegistry.Get(evt.Type)
		if !ok {
			logger.Warnf("No handler registered for event type: %s", evt.Type)
			return
		}
		if err := handler.Handle(NewHandlerContext(t), evt); err != nil {
			logger.Errorf("Trader failed to handle %s: %v", evt.Type, err)
		}
	})
}

func (t *Trader) pumpStream(ctx context.Context, in <-chan exchange.StreamEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return ctx.Err()
			}
			if err := t.SubmitStream(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// SubmitCandle queues a closed candle, blocking while the channel is full.
func (t *Trader) SubmitCandle(ctx context.Context, ev market.CandleEvent) error {
	select {
	case t.candleCh <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopCh:
		return errors.New("trader is stopped")
	}
}

// SubmitStream queues an order-stream event.
func (t *Trader) SubmitStream(ctx context.Context, ev exchange.StreamEvent) error {
	env := EventEnvelope{ID: uuid.NewString(), CreatedAt: time.Now()}
	switch ev.Kind {
	case exchange.StreamExecution:
		env.Type, env.Execution = EvtExecution, ev.Execution
		if ev.Execution != nil {
			t.record(journal.KindExecution, ev.Execution, nil)
		}
	case exchange.StreamAccount:
		env.Type, env.Account = EvtAccount, ev.Account
	case exchange.StreamReconnected:
		env.Type = EvtReconnected
	default:
		return nil
	}
	select {
	case t.execCh <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopCh:
		return errors.New("trader is stopped")
	}
}

// post feeds a dispatcher result back into the execution loop. Results
// arriving after shutdown are logged and dropped.
func (t *Trader) post(evt EventEnvelope) {
	evt.ID = uuid.NewString()
	evt.CreatedAt = time.Now()
	select {
	case t.execCh <- evt:
	case <-t.stopCh:
		logger.Warnf("Trader: dropping %s result after shutdown", evt.Type)
	}
}

// shutdown stops intake, waits for in-flight venue calls up to the
// configured timeout and reports the orders left resting. Nothing is
// cancelled.
func (t *Trader) shutdown() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		logger.Infof("Trader stopping, waiting up to %s for %d in-flight calls", t.shutdownTimeout, t.inflightCount.Load())
		done := make(chan struct{})
		go func() {
			t.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(t.shutdownTimeout):
			logger.Warnf("Trader: shutdown timeout with %d calls still in flight", t.inflightCount.Load())
		}
		kept := t.engine.Cleanup(t.session)
		logger.Infof("Trader stopped, %d live orders left resting on the venue", len(kept))
		if t.source != nil {
			_ = t.source.Close()
		}
		if t.stream != nil {
			if err := t.stream.Close(); err != nil {
				logger.Warnf("Trader: order stream close: %v", err)
			}
		}
	})
}

func (t *Trader) block(reason string) {
	t.blocked.Store(true)
	t.blockReason.Store(reason)
	logger.Errorf("Trader blocked, new signals rejected: %s", reason)
}

func (t *Trader) unblock() {
	if t.blocked.Swap(false) {
		logger.Infof("Trader unblocked after reconciliation")
	}
	t.blockReason.Store("")
}

func (t *Trader) Blocked() bool { return t.blocked.Load() }

// SetTradingHours replaces the window new signals are checked against.
// Open cycles are not affected.
func (t *Trader) SetTradingHours(w scheduler.Window) {
	t.hours.Store(&w)
	logger.Infof("Trader: trading hours %s", w)
}

func (t *Trader) tradingHours() scheduler.Window { return *t.hours.Load() }

// Status copies the state shown by the status API.
func (t *Trader) Status() Status {
	s := t.session
	hours := t.tradingHours()
	st := Status{
		Symbol:      s.Symbol,
		Interval:    t.interval,
		Variant:     t.engine.Variant(),
		Blocked:     t.blocked.Load(),
		BlockReason: t.blockReason.Load().(string),
		TradingOpen: hours.Open(t.now()),
		Hours:       hours.String(),
		SignalState: t.signalState.Load().(signal.State),
		Account:     s.Account(),
		Cycles:      s.Views(),
		Tracked:     s.TrackedCount(),
		Candles:     s.Series().Len(),
		Pending: PendingStats{
			Candles:    len(t.candleCh),
			Executions: len(t.execCh),
			InFlight:   t.inflightCount.Load(),
		},
	}
	for _, side := range types.Sides {
		if p := s.Position(side); p.Open() {
			st.Positions = append(st.Positions, p)
		}
	}
	if ms := t.lastCandle.Load(); ms > 0 {
		st.LastCandle = time.UnixMilli(ms).UTC()
	}
	if t.source != nil {
		st.Market = t.source.Stats()
	}
	return st
}
