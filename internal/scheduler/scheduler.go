package scheduler

import (
	"context"
	"time"

	"github.com/nirre55/bot-final/internal/logger"
)

// Aligned runs a task on interval boundaries (UTC) shifted by Offset, so a
// task with a 1h interval and 5s offset fires at hh:00:05.
type Aligned struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	now func() time.Time
}

func NewAligned(name string, interval, offset time.Duration) *Aligned {
	return &Aligned{Name: name, Interval: interval, Offset: max(offset, 0), now: time.Now}
}

// Next is the first wake-up strictly after now.
func (s *Aligned) Next(now time.Time) time.Time {
	now = now.UTC()
	wake := now.Truncate(s.Interval).Add(s.Offset)
	for !wake.After(now) {
		wake = wake.Add(s.Interval)
	}
	return wake
}

// Run blocks until ctx is done.
func (s *Aligned) Run(ctx context.Context, task func(context.Context)) {
	if task == nil || s.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s or nil task, not started", s.Name, s.Interval)
		return
	}
	if s.now == nil {
		s.now = time.Now
	}
	logger.Infof("scheduler %s: interval=%s offset=%s first=%s", s.Name, s.Interval, s.Offset,
		s.Next(s.now()).Format(time.RFC3339))
	if s.RunImmediately {
		task(ctx)
	}
	for {
		wait := s.Next(s.now()).Sub(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		task(ctx)
	}
}
