package logger

import (
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	tradeMu  sync.Mutex
	tradeLog *log.Logger
)

// SetTradeWriter routes fill/cycle lines to a dedicated file. nil disables it.
func SetTradeWriter(w io.Writer) {
	tradeMu.Lock()
	defer tradeMu.Unlock()
	if w == nil {
		tradeLog = nil
		return
	}
	tradeLog = log.New(w, "", log.LstdFlags)
}

// Trade writes a single "[TRADE][kind] k=v ..." line to the trade log and
// mirrors it to the main logger at info level.
func Trade(kind string, fields map[string]any) {
	line := formatTrade(kind, fields)
	Infof("%s", line)
	tradeMu.Lock()
	l := tradeLog
	tradeMu.Unlock()
	if l != nil {
		l.Print(line)
	}
}

func formatTrade(kind string, fields map[string]any) string {
	var b strings.Builder
	b.WriteString("[TRADE]")
	if kind = strings.TrimSpace(kind); kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatValue(fields[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case interface{ String() string }:
		return t.String()
	default:
		return "?"
	}
}
