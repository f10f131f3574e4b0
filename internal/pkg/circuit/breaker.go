// Package circuit guards exchange calls so a failing venue is not hammered.
package circuit

import (
	"errors"
	"sync"
	"time"

	"github.com/nirre55/bot-final/internal/logger"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

type Options struct {
	Name string
	// Threshold consecutive counted failures open the breaker.
	Threshold int
	// Cooldown is how long an open breaker waits before letting one probe through.
	Cooldown time.Duration
	// Counts filters which errors trip the breaker; nil counts all of them.
	// Business rejections (bad price, insufficient margin) should not.
	Counts func(error) bool
	// OnChange runs synchronously on every transition.
	OnChange func(name string, from, to State)
}

// Breaker is a consecutive-failure circuit breaker with a single half-open
// probe.
type Breaker struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func New(opts Options) *Breaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 1
	}
	if opts.OnChange == nil {
		opts.OnChange = func(name string, from, to State) {
			logger.Warnf("circuit %s: %s -> %s", name, from, to)
		}
	}
	return &Breaker{opts: opts, now: time.Now}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn unless the breaker is open and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrOpen
	}
	err := fn()
	b.settle(err != nil && (b.opts.Counts == nil || b.opts.Counts(err)))
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.opts.Cooldown {
			return false
		}
		b.move(HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *Breaker) settle(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasProbe := b.state == HalfOpen
	b.probing = false
	if !failed {
		b.failures = 0
		if wasProbe {
			b.move(Closed)
		}
		return
	}
	b.failures++
	if wasProbe || b.failures >= b.opts.Threshold {
		b.openedAt = b.now()
		if b.state != Open {
			b.move(Open)
		}
	}
}

func (b *Breaker) move(to State) {
	from := b.state
	b.state = to
	b.opts.OnChange(b.opts.Name, from, to)
}
