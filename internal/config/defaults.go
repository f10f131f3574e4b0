package config

import (
	"strings"
	"time"
)

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = "logs/hedgebot.log"
	defaultAppTradeLogPath = "logs/trades.log"
	defaultAppDBPath       = "data/hedgebot.db"
	defaultAppJournalPath  = "data/journal.db"
	defaultAppHTTPAddr     = ":9991"

	defaultRESTBaseURL        = "https://fapi.binance.com"
	defaultWSBaseURL          = "wss://fstream.binance.com"
	defaultTestnetRESTBaseURL = "https://testnet.binancefuture.com"
	defaultTestnetWSBaseURL   = "wss://stream.binancefuture.com"
	defaultHTTPTimeout        = 15 * time.Second
	defaultRecvWindow         = 5000
	defaultBreakerThreshold   = 5
	defaultBreakerTimeout     = 30 * time.Second

	defaultSymbol       = "BTCUSDC"
	defaultInterval     = "1m"
	defaultAsset        = "USDC"
	defaultHistoryLimit = 100
	defaultCandleBuffer = 500
	defaultVolumeWindow = 20

	defaultQuantityMode        = "fixed"
	defaultQuantityProgression = "double"
	defaultFixedQuantity       = 0.002
	defaultRiskPercent         = 0.03

	defaultVariant = "cascade"

	defaultHedgeLookback   = 5
	defaultHedgeOffset     = 0.001
	defaultHedgeMultiplier = 2.0

	defaultCascadeMaxOrders = 10

	defaultTPMultiplier  = 1.0
	defaultTPIncrement   = 0.001
	defaultTPPriceOffset = 0.001

	defaultAccMaxAccumulations = 10
	defaultAccTPPercent        = 0.01

	defaultSTLookback       = 5
	defaultSTOffset         = 0.001
	defaultSTTPPercent      = 0.005
	defaultSTExitPeriod     = 5
	defaultSTExitOversold   = 30
	defaultSTExitOverbought = 70
	defaultSTRetryAttempts  = 5
	defaultSTRetryDelay     = 2 * time.Second

	defaultOMSafetyOffset  = 0.0005
	defaultOMMinDistance   = 0.002
	defaultOMSmallOffset   = 0.0015
	defaultOMEntryRR       = 0.5
	defaultOMHedgeRR       = 1.5
	defaultRetryAttempts   = 3
	defaultRetryDelay      = 5 * time.Second
	defaultHoursTimezone   = "UTC"
	defaultCloseWindow     = 120 * time.Second
	defaultExecBuffer      = 256
	defaultEvtCandleBuffer = 64
	defaultShutdownTimeout = 10 * time.Second
)

// DefaultThresholds are the oscillator periods used when none are configured.
func DefaultThresholds() []RSIThreshold {
	return []RSIThreshold{
		{Period: 3, Oversold: 10, Overbought: 90},
		{Period: 5, Oversold: 20, Overbought: 80},
		{Period: 7, Oversold: 30, Overbought: 70},
	}
}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Quantity.applyDefaults(keys)
	applyFieldDefaults(keys, stringFieldDefault("strategy.variant", &c.Strategy.Variant, defaultVariant))
	c.Strategy.Variant = strings.ToLower(strings.TrimSpace(c.Strategy.Variant))
	applyFieldDefaults(keys,
		intFieldDefault("hedge.lookback", &c.Hedge.Lookback, defaultHedgeLookback),
		floatFieldDefault("hedge.offset_percent", &c.Hedge.OffsetPercent, defaultHedgeOffset),
		floatFieldDefault("hedge.quantity_multiplier", &c.Hedge.QuantityMultiplier, defaultHedgeMultiplier),
		intFieldDefault("cascade.max_orders", &c.Cascade.MaxOrders, defaultCascadeMaxOrders),
		floatFieldDefault("take_profit.multiplier", &c.TakeProfit.Multiplier, defaultTPMultiplier),
		floatFieldDefault("take_profit.increment_percent", &c.TakeProfit.IncrementPercent, defaultTPIncrement),
		floatFieldDefault("take_profit.price_offset", &c.TakeProfit.PriceOffset, defaultTPPriceOffset),
		intFieldDefault("accumulator.max_accumulations", &c.Accumulator.MaxAccumulations, defaultAccMaxAccumulations),
		floatFieldDefault("accumulator.tp_percent", &c.Accumulator.TPPercent, defaultAccTPPercent),
		intFieldDefault("retry.attempts", &c.Retry.Attempts, defaultRetryAttempts),
		durationFieldDefault("retry.delay", &c.Retry.Delay, defaultRetryDelay),
		stringFieldDefault("trading_hours.timezone", &c.TradingHours.Timezone, defaultHoursTimezone),
		durationFieldDefault("loss_recovery.close_window", &c.LossRecovery.CloseWindow, defaultCloseWindow),
		intFieldDefault("events.candle_buffer", &c.Events.CandleBuffer, defaultEvtCandleBuffer),
		intFieldDefault("events.execution_buffer", &c.Events.ExecutionBuffer, defaultExecBuffer),
		durationFieldDefault("events.shutdown_timeout", &c.Events.ShutdownTimeout, defaultShutdownTimeout),
	)
	c.StopTarget.applyDefaults(keys)
	c.OneOrMore.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.trade_log_path", &a.TradeLogPath, defaultAppTradeLogPath),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
		stringFieldDefault("app.journal_path", &a.JournalPath, defaultAppJournalPath),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	rest, ws := defaultRESTBaseURL, defaultWSBaseURL
	if e.Testnet {
		rest, ws = defaultTestnetRESTBaseURL, defaultTestnetWSBaseURL
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.rest_base_url", &e.RESTBaseURL, rest),
		stringFieldDefault("exchange.ws_base_url", &e.WSBaseURL, ws),
		durationFieldDefault("exchange.http_timeout", &e.HTTPTimeout, defaultHTTPTimeout),
		intFieldDefault("exchange.breaker_threshold", &e.BreakerThreshold, defaultBreakerThreshold),
		durationFieldDefault("exchange.breaker_timeout", &e.BreakerTimeout, defaultBreakerTimeout),
	)
	if e.RecvWindow <= 0 {
		e.RecvWindow = defaultRecvWindow
	}
	e.Proxy.normalize()
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.symbol", &m.Symbol, defaultSymbol),
		stringFieldDefault("market.interval", &m.Interval, defaultInterval),
		stringFieldDefault("market.asset", &m.Asset, defaultAsset),
		intFieldDefault("market.history_limit", &m.HistoryLimit, defaultHistoryLimit),
		intFieldDefault("market.candle_buffer", &m.CandleBuffer, defaultCandleBuffer),
	)
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
	m.Asset = strings.ToUpper(strings.TrimSpace(m.Asset))
	m.Interval = strings.ToLower(strings.TrimSpace(m.Interval))
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if len(s.Thresholds) == 0 {
		s.Thresholds = DefaultThresholds()
	}
	applyFieldDefaults(keys,
		boolFieldDefault("signal.rsi_on_ha", &s.RSIOnHA, true),
		intFieldDefault("signal.volume_filter.window", &s.Volume.Window, defaultVolumeWindow),
	)
}

func (q *QuantityConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("quantity.mode", &q.Mode, defaultQuantityMode),
		stringFieldDefault("quantity.progression", &q.Progression, defaultQuantityProgression),
		floatFieldDefault("quantity.fixed_quantity", &q.FixedQuantity, defaultFixedQuantity),
		floatFieldDefault("quantity.risk_percent", &q.RiskPercent, defaultRiskPercent),
	)
	q.Mode = strings.ToLower(strings.TrimSpace(q.Mode))
	q.Progression = strings.ToLower(strings.TrimSpace(q.Progression))
}

func (s *StopTargetConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("stop_target.sl_lookback", &s.SLLookback, defaultSTLookback),
		floatFieldDefault("stop_target.sl_offset_percent", &s.SLOffsetPercent, defaultSTOffset),
		floatFieldDefault("stop_target.tp_percent", &s.TPPercent, defaultSTTPPercent),
		intFieldDefault("stop_target.exit_period", &s.ExitPeriod, defaultSTExitPeriod),
		floatFieldDefault("stop_target.exit_oversold", &s.ExitOversold, defaultSTExitOversold),
		floatFieldDefault("stop_target.exit_overbought", &s.ExitOverbought, defaultSTExitOverbought),
		intFieldDefault("stop_target.sl_retry_attempts", &s.SLRetryAttempts, defaultSTRetryAttempts),
		durationFieldDefault("stop_target.sl_retry_delay", &s.SLRetryDelay, defaultSTRetryDelay),
	)
}

func (o *OneOrMoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("one_or_more.tp_safety_offset_percent", &o.TPSafetyOffsetPercent, defaultOMSafetyOffset),
		floatFieldDefault("one_or_more.min_distance_percent", &o.MinDistancePercent, defaultOMMinDistance),
		floatFieldDefault("one_or_more.small_distance_offset_percent", &o.SmallDistanceOffsetPercent, defaultOMSmallOffset),
		floatFieldDefault("one_or_more.post_hedge_entry_rr", &o.PostHedgeEntryRR, defaultOMEntryRR),
		floatFieldDefault("one_or_more.post_hedge_hedge_rr", &o.PostHedgeHedgeRR, defaultOMHedgeRR),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func durationFieldDefault(key string, target *time.Duration, def time.Duration) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
