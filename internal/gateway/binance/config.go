package binance

import (
	"strings"
	"time"

	"github.com/nirre55/bot-final/internal/config"
)

const (
	mainnetREST   = "https://fapi.binance.com"
	testnetREST   = "https://testnet.binancefuture.com"
	mainnetStream = "wss://fstream.binance.com/ws"
	testnetStream = "wss://stream.binancefuture.com/ws"
)

type Config struct {
	APIKey      string
	SecretKey   string
	Testnet     bool
	RESTBaseURL string
	WSBaseURL   string
	HTTPTimeout time.Duration
	RecvWindow  int64

	ProxyEnabled bool
	RESTProxyURL string
	WSProxyURL   string

	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// ConfigFrom maps the exchange section of the bot configuration.
func ConfigFrom(c config.ExchangeConfig) Config {
	return Config{
		APIKey:           c.APIKey,
		SecretKey:        c.SecretKey,
		Testnet:          c.Testnet,
		RESTBaseURL:      c.RESTBaseURL,
		WSBaseURL:        c.WSBaseURL,
		HTTPTimeout:      c.HTTPTimeout,
		RecvWindow:       c.RecvWindow,
		ProxyEnabled:     c.Proxy.Enabled,
		RESTProxyURL:     c.Proxy.RESTURL,
		WSProxyURL:       c.Proxy.WSURL,
		BreakerThreshold: c.BreakerThreshold,
		BreakerTimeout:   c.BreakerTimeout,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = mainnetREST
		if out.Testnet {
			out.RESTBaseURL = testnetREST
		}
	}
	out.WSBaseURL = strings.TrimRight(strings.TrimSpace(out.WSBaseURL), "/")
	if out.WSBaseURL == "" {
		out.WSBaseURL = mainnetStream
		if out.Testnet {
			out.WSBaseURL = testnetStream
		}
	}
	// User-data streams live under /ws/<listenKey>.
	if !strings.HasSuffix(out.WSBaseURL, "/ws") {
		out.WSBaseURL += "/ws"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.RecvWindow <= 0 {
		out.RecvWindow = 5000
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerTimeout <= 0 {
		out.BreakerTimeout = 30 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	if out.WSProxyURL == "" {
		out.WSProxyURL = out.RESTProxyURL
	}
	return out
}
