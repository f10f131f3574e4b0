// Package retry runs an operation under a bounded attempt policy.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy decides how often and how long to retry. Retryable filters which
// errors qualify; a nil Retryable retries every error.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
	Retryable   func(error) bool

	// Sleep is swapped out in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fixed waits the same delay between attempts.
func Fixed(attempts int, delay time.Duration, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       func(int) time.Duration { return delay },
		Retryable:   retryable,
	}
}

// Linear waits base*attempt after the attempt-th failure.
func Linear(attempts int, base time.Duration, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       func(attempt int) time.Duration { return base * time.Duration(attempt) },
		Retryable:   retryable,
	}
}

// Exponential doubles base per attempt, capped at max.
func Exponential(attempts int, base, max time.Duration, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay: func(attempt int) time.Duration {
			if attempt <= 0 {
				return base
			}
			if attempt > 30 {
				return max
			}
			d := base * time.Duration(1<<(attempt-1))
			if d > max {
				return max
			}
			return d
		},
		Retryable: retryable,
	}
}

// Exhausted wraps the last error once every attempt failed.
type Exhausted struct {
	Attempts int
	Err      error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Exhausted) Unwrap() error { return e.Err }

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// run out or ctx ends. It reports how many attempts were made.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err == nil {
				err = cerr
			}
			return attempt - 1, err
		}
		err = op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if attempt == max {
			break
		}
		var d time.Duration
		if p.Delay != nil {
			d = p.Delay(attempt)
		}
		if serr := sleep(ctx, d); serr != nil {
			return attempt, err
		}
	}
	return max, &Exhausted{Attempts: max, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff is an open-ended reconnect schedule. Each Wait sleeps for the
// current delay and doubles it, capped at Max; Reset starts again at Min.
type Backoff struct {
	Min, Max time.Duration

	next time.Duration
}

// Wait sleeps for the next delay. It returns false when ctx ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	if b.next <= 0 {
		b.next = b.Min
	}
	if b.next <= 0 {
		b.next = time.Second
	}
	d := b.next
	b.next *= 2
	if b.Max > 0 && b.next > b.Max {
		b.next = b.Max
	}
	return sleepContext(ctx, d) == nil && ctx.Err() == nil
}

func (b *Backoff) Reset() { b.next = 0 }
