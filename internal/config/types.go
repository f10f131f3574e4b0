package config

import (
	"strings"
	"time"
)

// Config is the root configuration of the bot.
type Config struct {
	App          AppConfig          `toml:"app"`
	Exchange     ExchangeConfig     `toml:"exchange"`
	Market       MarketConfig       `toml:"market"`
	Signal       SignalConfig       `toml:"signal"`
	Quantity     QuantityConfig     `toml:"quantity"`
	Strategy     StrategyConfig     `toml:"strategy"`
	Hedge        HedgeConfig        `toml:"hedge"`
	Cascade      CascadeConfig      `toml:"cascade"`
	TakeProfit   TakeProfitConfig   `toml:"take_profit"`
	Accumulator  AccumulatorConfig  `toml:"accumulator"`
	StopTarget   StopTargetConfig   `toml:"stop_target"`
	OneOrMore    OneOrMoreConfig    `toml:"one_or_more"`
	Retry        RetryConfig        `toml:"retry"`
	TradingHours TradingHoursConfig `toml:"trading_hours"`
	LossRecovery LossRecoveryConfig `toml:"loss_recovery"`
	Events       EventsConfig       `toml:"events"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	LogPath      string `toml:"log_path"`
	TradeLogPath string `toml:"trade_log_path"`
	DBPath       string `toml:"db_path"`
	JournalPath  string `toml:"journal_path"`
	HTTPAddr     string `toml:"http_addr"`
}

type ExchangeConfig struct {
	APIKey      string        `toml:"api_key"`
	SecretKey   string        `toml:"secret_key"`
	Testnet     bool          `toml:"testnet"`
	RESTBaseURL string        `toml:"rest_base_url"`
	WSBaseURL   string        `toml:"ws_base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
	RecvWindow  int64         `toml:"recv_window"`
	Proxy       ProxyConfig   `toml:"proxy"`
	// BreakerThreshold consecutive transient failures open the REST breaker.
	BreakerThreshold int           `toml:"breaker_threshold"`
	BreakerTimeout   time.Duration `toml:"breaker_timeout"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`
}

func (p *ProxyConfig) normalize() {
	p.RESTURL = strings.TrimSpace(p.RESTURL)
	p.WSURL = strings.TrimSpace(p.WSURL)
	if p.WSURL == "" {
		p.WSURL = p.RESTURL
	}
}

type MarketConfig struct {
	Symbol       string `toml:"symbol"`
	Interval     string `toml:"interval"`
	Asset        string `toml:"asset"`
	HistoryLimit int    `toml:"history_limit"`
	CandleBuffer int    `toml:"candle_buffer"`
}

// RSIThreshold binds one oscillator period to its extreme bounds.
type RSIThreshold struct {
	Period     int     `toml:"period"`
	Oversold   float64 `toml:"oversold"`
	Overbought float64 `toml:"overbought"`
}

type SignalConfig struct {
	RSIOnHA    bool           `toml:"rsi_on_ha"`
	Thresholds []RSIThreshold `toml:"thresholds"`
	Volume     VolumeFilter   `toml:"volume_filter"`
}

type VolumeFilter struct {
	Enabled bool `toml:"enabled"`
	Window  int  `toml:"window"`
}

type QuantityConfig struct {
	Mode          string  `toml:"mode"`
	Progression   string  `toml:"progression"`
	FixedQuantity float64 `toml:"fixed_quantity"`
	RiskPercent   float64 `toml:"risk_percent"`
	Step          float64 `toml:"step"`
}

type StrategyConfig struct {
	Variant string `toml:"variant"`
}

type HedgeConfig struct {
	Lookback           int     `toml:"lookback"`
	OffsetPercent      float64 `toml:"offset_percent"`
	QuantityMultiplier float64 `toml:"quantity_multiplier"`
}

type CascadeConfig struct {
	MaxOrders int `toml:"max_orders"`
}

type TakeProfitConfig struct {
	Multiplier       float64 `toml:"multiplier"`
	IncrementPercent float64 `toml:"increment_percent"`
	PriceOffset      float64 `toml:"price_offset"`
}

type AccumulatorConfig struct {
	MaxAccumulations int     `toml:"max_accumulations"`
	TPPercent        float64 `toml:"tp_percent"`
}

type StopTargetConfig struct {
	SLLookback      int           `toml:"sl_lookback"`
	SLOffsetPercent float64       `toml:"sl_offset_percent"`
	TPPercent       float64       `toml:"tp_percent"`
	DynamicExit     bool          `toml:"dynamic_exit"`
	ExitPeriod      int           `toml:"exit_period"`
	ExitOversold    float64       `toml:"exit_oversold"`
	ExitOverbought  float64       `toml:"exit_overbought"`
	SLRetryAttempts int           `toml:"sl_retry_attempts"`
	SLRetryDelay    time.Duration `toml:"sl_retry_delay"`
}

type OneOrMoreConfig struct {
	TPSafetyOffsetPercent      float64 `toml:"tp_safety_offset_percent"`
	MinDistancePercent         float64 `toml:"min_distance_percent"`
	SmallDistanceOffsetPercent float64 `toml:"small_distance_offset_percent"`
	PostHedgeEntryRR           float64 `toml:"post_hedge_entry_rr"`
	PostHedgeHedgeRR           float64 `toml:"post_hedge_hedge_rr"`
}

type RetryConfig struct {
	Attempts int           `toml:"attempts"`
	Delay    time.Duration `toml:"delay"`
}

type TradingHoursConfig struct {
	Enabled  bool   `toml:"enabled"`
	Start    string `toml:"start"`
	End      string `toml:"end"`
	Timezone string `toml:"timezone"`
}

type LossRecoveryConfig struct {
	Enabled     bool          `toml:"enabled"`
	CloseWindow time.Duration `toml:"close_window"`
}

type EventsConfig struct {
	CandleBuffer    int           `toml:"candle_buffer"`
	ExecutionBuffer int           `toml:"execution_buffer"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
