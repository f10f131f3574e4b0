package config

import (
	"fmt"
	"strings"
	"time"
)

var (
	validVariants     = []string{"cascade", "accumulator", "stop_target", "one_or_more"}
	validModes        = []string{"minimum", "fixed", "percentage"}
	validProgressions = []string{"step", "double"}
)

func validate(c *Config) error {
	if strings.TrimSpace(c.Market.Symbol) == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if !oneOf(c.Strategy.Variant, validVariants) {
		return fmt.Errorf("strategy.variant must be one of %s, got %q", strings.Join(validVariants, "|"), c.Strategy.Variant)
	}
	if err := c.Quantity.validate(); err != nil {
		return err
	}
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if c.Hedge.Lookback <= 0 {
		return fmt.Errorf("hedge.lookback must be > 0")
	}
	if c.Hedge.QuantityMultiplier < 1 {
		return fmt.Errorf("hedge.quantity_multiplier must be >= 1")
	}
	if c.Cascade.MaxOrders <= 0 {
		return fmt.Errorf("cascade.max_orders must be > 0")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must be >= 0")
	}
	if c.Events.CandleBuffer <= 0 || c.Events.ExecutionBuffer <= 0 {
		return fmt.Errorf("events buffers must be > 0")
	}
	if err := c.TradingHours.validate(); err != nil {
		return err
	}
	return nil
}

func (q *QuantityConfig) validate() error {
	if !oneOf(q.Mode, validModes) {
		return fmt.Errorf("quantity.mode must be one of %s, got %q", strings.Join(validModes, "|"), q.Mode)
	}
	if !oneOf(q.Progression, validProgressions) {
		return fmt.Errorf("quantity.progression must be one of %s, got %q", strings.Join(validProgressions, "|"), q.Progression)
	}
	if q.Mode == "fixed" && q.FixedQuantity <= 0 {
		return fmt.Errorf("quantity.fixed_quantity must be > 0 in fixed mode")
	}
	if q.Mode == "percentage" && (q.RiskPercent <= 0 || q.RiskPercent >= 1) {
		return fmt.Errorf("quantity.risk_percent must be in (0,1)")
	}
	if q.Step < 0 {
		return fmt.Errorf("quantity.step must be >= 0")
	}
	return nil
}

func (s *SignalConfig) validate() error {
	seen := make(map[int]bool, len(s.Thresholds))
	for _, th := range s.Thresholds {
		if th.Period <= 0 {
			return fmt.Errorf("signal.thresholds: period must be > 0")
		}
		if seen[th.Period] {
			return fmt.Errorf("signal.thresholds: duplicate period %d", th.Period)
		}
		seen[th.Period] = true
		// overlapping bands would let one candle qualify for both directions
		if th.Oversold >= th.Overbought {
			return fmt.Errorf("signal.thresholds period %d: oversold (%.2f) must be below overbought (%.2f)", th.Period, th.Oversold, th.Overbought)
		}
	}
	if s.Volume.Enabled && s.Volume.Window <= 0 {
		return fmt.Errorf("signal.volume_filter.window must be > 0")
	}
	return nil
}

func (t *TradingHoursConfig) validate() error {
	if !t.Enabled {
		return nil
	}
	if _, err := time.Parse("15:04", strings.TrimSpace(t.Start)); err != nil {
		return fmt.Errorf("trading_hours.start must be HH:MM: %w", err)
	}
	if _, err := time.Parse("15:04", strings.TrimSpace(t.End)); err != nil {
		return fmt.Errorf("trading_hours.end must be HH:MM: %w", err)
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		return fmt.Errorf("trading_hours.timezone: %w", err)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
