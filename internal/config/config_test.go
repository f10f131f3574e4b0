package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
market:
  symbol: ethusdc
strategy:
  variant: ONE_OR_MORE
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDC", cfg.Market.Symbol)
	assert.Equal(t, "one_or_more", cfg.Strategy.Variant)
	assert.Equal(t, "1m", cfg.Market.Interval)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay)
	assert.Equal(t, 10, cfg.Cascade.MaxOrders)
	assert.Equal(t, 0.5, cfg.OneOrMore.PostHedgeEntryRR)
	assert.Equal(t, 1.5, cfg.OneOrMore.PostHedgeHedgeRR)
	assert.True(t, cfg.Signal.RSIOnHA)
	assert.Equal(t, DefaultThresholds(), cfg.Signal.Thresholds)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
signal:
  rsi_on_ha: false
  thresholds:
    - period: 14
      oversold: 25
      overbought: 75
retry:
  attempts: 7
  delay: 250ms
quantity:
  mode: percentage
  risk_percent: 0.03
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Signal.RSIOnHA)
	require.Len(t, cfg.Signal.Thresholds, 1)
	assert.Equal(t, RSIThreshold{Period: 14, Oversold: 25, Overbought: 75}, cfg.Signal.Thresholds[0])
	assert.Equal(t, 7, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, "percentage", cfg.Quantity.Mode)
}

func TestLoadFollowsIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
market:
  symbol: BTCUSDC
hedge:
  lookback: 8
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
hedge:
  offset_percent: 0.002
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Hedge.Lookback)
	assert.Equal(t, 0.002, cfg.Hedge.OffsetPercent)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown variant":     "strategy:\n  variant: martingale\n",
		"overlapping bands":   "signal:\n  thresholds:\n    - {period: 3, oversold: 60, overbought: 40}\n",
		"bad trading hours":   "trading_hours:\n  enabled: true\n  start: '25:00'\n  end: '10:00'\n",
		"bad risk percentage": "quantity:\n  mode: percentage\n  risk_percent: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsKeysFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "key-from-env")
	t.Setenv(EnvSecretKey, "secret-from-env")
	path := writeFile(t, t.TempDir(), "config.yaml", "market:\n  symbol: BTCUSDC\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Exchange.SecretKey)
}

func TestWriteExampleLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "example.yaml")
	require.NoError(t, WriteExample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Example().Market.Symbol, cfg.Market.Symbol)
	assert.Equal(t, Example().Strategy.Variant, cfg.Strategy.Variant)
}

func TestTestnetSwitchesEndpoints(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "exchange:\n  testnet: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultTestnetRESTBaseURL, cfg.Exchange.RESTBaseURL)
	assert.Equal(t, defaultTestnetWSBaseURL, cfg.Exchange.WSBaseURL)
}
