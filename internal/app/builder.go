package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nirre55/bot-final/internal/analysis/indicator"
	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/binance"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/ledger"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/pkg/symbol"
	"github.com/nirre55/bot-final/internal/scheduler"
	"github.com/nirre55/bot-final/internal/signal"
	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/gormstore"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/strategy"
	"github.com/nirre55/bot-final/internal/trader"
	statushttp "github.com/nirre55/bot-final/internal/transport/http/status"
)

const (
	accountRefreshInterval = 5 * time.Minute
	settleDelay            = 2 * time.Second
)

// Venue groups the exchange collaborators.
type Venue struct {
	Gateway exchange.Gateway
	Source  market.Source
	Stream  exchange.OrderStream
}

type AppBuilder struct {
	cfg *config.Config

	storeFn   func(path string) (store.Store, error)
	journalFn func(path string) (*journal.Journal, error)
	venueFn   func(config.ExchangeConfig) (*Venue, error)
	statusFn  func(statushttp.ServerConfig) (*statushttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithVenue replaces the Binance collaborators, e.g. with fakes.
func WithVenue(v *Venue) AppBuilderOption {
	return func(b *AppBuilder) {
		b.venueFn = func(config.ExchangeConfig) (*Venue, error) { return v, nil }
	}
}

func WithoutStatusServer() AppBuilderOption {
	return func(b *AppBuilder) {
		b.statusFn = func(statushttp.ServerConfig) (*statushttp.Server, error) { return nil, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   openStore,
		journalFn: journal.Open,
		venueFn:   buildBinanceVenue,
		statusFn:  statushttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(path string) (store.Store, error) {
	return gormstore.NewGormStore(path)
}

func buildBinanceVenue(cfg config.ExchangeConfig) (*Venue, error) {
	bc := binance.ConfigFrom(cfg)
	gw, err := binance.NewGateway(bc)
	if err != nil {
		return nil, fmt.Errorf("binance gateway: %w", err)
	}
	src, err := binance.NewSource(bc)
	if err != nil {
		return nil, fmt.Errorf("binance kline source: %w", err)
	}
	stream, err := binance.NewUserStream(bc)
	if err != nil {
		return nil, fmt.Errorf("binance user stream: %w", err)
	}
	return &Venue{Gateway: gw, Source: src, Stream: stream}, nil
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	sym := symbol.Normalize(cfg.Market.Symbol)
	if sym == "" {
		return nil, fmt.Errorf("market.symbol %q is not a recognised pair", cfg.Market.Symbol)
	}
	asset := strings.ToUpper(strings.TrimSpace(cfg.Market.Asset))
	if asset == "" {
		asset = symbol.QuoteAsset(sym)
	}

	st, err := b.storeFn(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers := []func() error{st.Close}
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	jr, err := b.journalFn(cfg.App.JournalPath)
	if err != nil {
		return fail(fmt.Errorf("open journal: %w", err))
	}
	closers = append(closers, jr.Close)
	led := ledger.New(st)

	venue, err := b.venueFn(cfg.Exchange)
	if err != nil {
		return fail(err)
	}

	qty, err := strategy.QuantityFrom(cfg.Quantity)
	if err != nil {
		return fail(err)
	}
	opts := strategy.SessionOptions{
		Symbol:      sym,
		Asset:       asset,
		Series:      market.NewSeries(cfg.Market.CandleBuffer),
		Quantity:    qty,
		CloseWindow: cfg.LossRecovery.CloseWindow,
	}
	if cfg.LossRecovery.Enabled {
		opts.Recovery = led
	}
	session := strategy.NewSession(opts)

	engine, err := strategy.New(cfg)
	if err != nil {
		return fail(err)
	}
	thresholds := make([]signal.Threshold, 0, len(cfg.Signal.Thresholds))
	periods := make([]int, 0, len(cfg.Signal.Thresholds))
	for _, th := range cfg.Signal.Thresholds {
		thresholds = append(thresholds, signal.Threshold{Period: th.Period, Oversold: th.Oversold, Overbought: th.Overbought})
		periods = append(periods, th.Period)
	}
	machine, err := signal.NewMachine(thresholds)
	if err != nil {
		return fail(err)
	}
	hours, err := tradingWindow(cfg.TradingHours)
	if err != nil {
		return fail(err)
	}

	tr, err := trader.New(trader.Options{
		Interval:     cfg.Market.Interval,
		HistoryLimit: cfg.Market.HistoryLimit,
		Engine:       engine,
		Session:      session,
		Gateway:      venue.Gateway,
		Source:       venue.Source,
		Stream:       venue.Stream,
		Signals:      machine,
		Indicator: indicator.Settings{
			Periods:       periods,
			OnHA:          cfg.Signal.RSIOnHA,
			VolumeEnabled: cfg.Signal.Volume.Enabled,
			VolumeWindow:  cfg.Signal.Volume.Window,
		},
		Hours:          hours,
		Ledger:         led,
		History:        st,
		Journal:        jr,
		Retry:          cfg.Retry,
		Events:         cfg.Events,
		AccountRefresh: accountRefreshInterval,
		SettleDelay:    settleDelay,
	})
	if err != nil {
		return fail(err)
	}

	server, err := b.statusFn(statushttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Symbol:  sym,
		Status:  tr,
		Ledger:  led,
		History: st,
		Journal: jr,
		LogPaths: map[string]string{
			"app":    cfg.App.LogPath,
			"trades": cfg.App.TradeLogPath,
		},
	})
	if err != nil {
		return fail(fmt.Errorf("status server: %w", err))
	}

	return &App{
		cfg:     cfg,
		symbol:  sym,
		asset:   asset,
		trader:  tr,
		status:  server,
		store:   st,
		journal: jr,
		ledger:  led,
		gateway: venue.Gateway,
		Summary: buildSummary(cfg, sym, asset, engine.Variant(), hours),
	}, nil
}

func tradingWindow(c config.TradingHoursConfig) (scheduler.Window, error) {
	return scheduler.ParseWindow(c.Enabled, c.Start, c.End, c.Timezone)
}

func buildSummary(cfg *config.Config, sym, asset string, v strategy.Variant, hours scheduler.Window) *StartupSummary {
	s := &StartupSummary{
		Symbol:       sym,
		Asset:        asset,
		Interval:     cfg.Market.Interval,
		HistoryLimit: cfg.Market.HistoryLimit,
		Testnet:      cfg.Exchange.Testnet,
		Variant:      string(v),
		RSIOnHA:      cfg.Signal.RSIOnHA,
		Hours:        hours.String(),
		Volume:       "off",
		Recovery:     "off",
		HTTPAddr:     cfg.App.HTTPAddr,
		DBPath:       cfg.App.DBPath,
		JournalPath:  cfg.App.JournalPath,
	}
	for _, th := range cfg.Signal.Thresholds {
		s.Thresholds = append(s.Thresholds, fmt.Sprintf("%d:%g/%g", th.Period, th.Oversold, th.Overbought))
	}
	if cfg.Signal.Volume.Enabled {
		s.Volume = fmt.Sprintf("above %d-candle mean", cfg.Signal.Volume.Window)
	}
	if cfg.LossRecovery.Enabled {
		s.Recovery = fmt.Sprintf("on, close window %s", cfg.LossRecovery.CloseWindow)
	}
	q := cfg.Quantity
	switch strings.ToLower(q.Mode) {
	case "fixed":
		s.Quantity = fmt.Sprintf("fixed %g, %s progression", q.FixedQuantity, q.Progression)
	case "percentage":
		s.Quantity = fmt.Sprintf("risk %g%% of balance, %s progression", q.RiskPercent*100, q.Progression)
	default:
		s.Quantity = fmt.Sprintf("%s, %s progression", q.Mode, q.Progression)
	}
	return s
}
