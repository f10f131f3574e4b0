package app

import (
	"fmt"
	"io"
	"strings"
)

// StartupSummary is printed once before the trader starts.
type StartupSummary struct {
	Symbol       string
	Asset        string
	Interval     string
	HistoryLimit int
	Testnet      bool

	Variant     string
	Quantity    string
	Thresholds  []string
	RSIOnHA     bool
	Volume      string
	Hours       string
	Recovery    string
	HTTPAddr    string
	DBPath      string
	JournalPath string
}

func (s *StartupSummary) Print(w io.Writer) {
	line := strings.Repeat("=", 72)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "%*s\n", 36+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Fprintln(w, line)

	fmt.Fprintln(w, "[MARKET]")
	venue := "mainnet"
	if s.Testnet {
		venue = "testnet"
	}
	fmt.Fprintf(w, "  symbol:   %s (%s margin, %s)\n", s.Symbol, s.Asset, venue)
	fmt.Fprintf(w, "  interval: %s, history %d\n", s.Interval, s.HistoryLimit)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[SIGNAL]")
	fmt.Fprintf(w, "  rsi:      %s (heikin ashi: %t)\n", formatList(s.Thresholds), s.RSIOnHA)
	fmt.Fprintf(w, "  volume:   %s\n", s.Volume)
	fmt.Fprintf(w, "  hours:    %s\n", s.Hours)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[STRATEGY]")
	fmt.Fprintf(w, "  variant:  %s\n", s.Variant)
	fmt.Fprintf(w, "  quantity: %s\n", s.Quantity)
	fmt.Fprintf(w, "  recovery: %s\n", s.Recovery)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[STORAGE / API]")
	fmt.Fprintf(w, "  db:       %s\n", s.DBPath)
	fmt.Fprintf(w, "  journal:  %s\n", s.JournalPath)
	fmt.Fprintf(w, "  http:     %s\n", s.HTTPAddr)
	fmt.Fprintln(w, line)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
