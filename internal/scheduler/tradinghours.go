package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Window is a daily trading window in a fixed timezone. A window whose end
// is before its start wraps midnight. The zero Window is always open.
type Window struct {
	enabled    bool
	start, end int // minutes since midnight
	loc        *time.Location
}

// ParseWindow builds a window from "HH:MM" bounds and an IANA zone name.
func ParseWindow(enabled bool, start, end, tz string) (Window, error) {
	if !enabled {
		return Window{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("trading hours start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("trading hours end: %w", err)
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("trading hours timezone: %w", err)
	}
	return Window{enabled: true, start: s, end: e, loc: loc}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Open reports whether new signals may be taken at t. The start is
// inclusive and the end exclusive; equal bounds mean the whole day.
func (w Window) Open(t time.Time) bool {
	if !w.enabled || w.start == w.end {
		return true
	}
	local := t.In(w.loc)
	m := local.Hour()*60 + local.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

func (w Window) String() string {
	if !w.enabled {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s", w.start/60, w.start%60, w.end/60, w.end%60, w.loc)
}
