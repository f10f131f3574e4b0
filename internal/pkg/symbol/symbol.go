// Package symbol normalizes instrument names between the config and the venue.
package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

// Display renders BASE/QUOTE.
func (s Symbol) Display() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance renders the venue form, e.g. BTCUSDT.
func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "FDUSD", "TUSD", "BTC", "ETH", "BNB"}

// Parse accepts "BTCUSDT", "btc/usdt" and "BTC/USDT:USDT".
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize returns the venue form or "" when s cannot be parsed.
func Normalize(s string) string {
	return Parse(s).Binance()
}

// QuoteAsset is the margin asset for a linear perpetual, USDT when unknown.
func QuoteAsset(s string) string {
	if q := Parse(s).Quote; q != "" {
		return q
	}
	return "USDT"
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
