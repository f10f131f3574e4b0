package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Example returns a fully defaulted configuration suitable for a first run.
func Example() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

// WriteExample renders the defaulted configuration as YAML at path.
func WriteExample(path string) error {
	doc := exampleDocument(Example())
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("render example config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// exampleDocument keeps the YAML keys aligned with the decoder tags; yaml.v3
// does not read the toml tags used for decoding.
func exampleDocument(c *Config) map[string]any {
	thresholds := make([]map[string]any, 0, len(c.Signal.Thresholds))
	for _, th := range c.Signal.Thresholds {
		thresholds = append(thresholds, map[string]any{
			"period": th.Period, "oversold": th.Oversold, "overbought": th.Overbought,
		})
	}
	return map[string]any{
		"app": map[string]any{
			"env": c.App.Env, "log_level": c.App.LogLevel, "log_path": c.App.LogPath,
			"trade_log_path": c.App.TradeLogPath, "db_path": c.App.DBPath,
			"journal_path": c.App.JournalPath, "http_addr": c.App.HTTPAddr,
		},
		"exchange": map[string]any{
			"testnet": c.Exchange.Testnet, "rest_base_url": c.Exchange.RESTBaseURL,
			"ws_base_url": c.Exchange.WSBaseURL, "http_timeout": c.Exchange.HTTPTimeout.String(),
		},
		"market": map[string]any{
			"symbol": c.Market.Symbol, "interval": c.Market.Interval, "asset": c.Market.Asset,
			"history_limit": c.Market.HistoryLimit,
		},
		"signal": map[string]any{
			"rsi_on_ha":     c.Signal.RSIOnHA,
			"thresholds":    thresholds,
			"volume_filter": map[string]any{"enabled": c.Signal.Volume.Enabled, "window": c.Signal.Volume.Window},
		},
		"quantity": map[string]any{
			"mode": c.Quantity.Mode, "progression": c.Quantity.Progression,
			"fixed_quantity": c.Quantity.FixedQuantity, "risk_percent": c.Quantity.RiskPercent,
		},
		"strategy": map[string]any{"variant": c.Strategy.Variant},
		"hedge": map[string]any{
			"lookback": c.Hedge.Lookback, "offset_percent": c.Hedge.OffsetPercent,
			"quantity_multiplier": c.Hedge.QuantityMultiplier,
		},
		"cascade": map[string]any{"max_orders": c.Cascade.MaxOrders},
		"take_profit": map[string]any{
			"multiplier": c.TakeProfit.Multiplier, "increment_percent": c.TakeProfit.IncrementPercent,
			"price_offset": c.TakeProfit.PriceOffset,
		},
		"retry": map[string]any{"attempts": c.Retry.Attempts, "delay": c.Retry.Delay.String()},
		"trading_hours": map[string]any{
			"enabled": c.TradingHours.Enabled, "start": "00:00", "end": "23:59", "timezone": c.TradingHours.Timezone,
		},
		"loss_recovery": map[string]any{"enabled": c.LossRecovery.Enabled, "close_window": c.LossRecovery.CloseWindow.String()},
	}
}
