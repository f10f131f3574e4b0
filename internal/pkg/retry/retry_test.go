package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("flaky")
	errFatal = errors.New("fatal")
)

func recordingSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var slept []time.Duration
	p := Fixed(3, 5*time.Second, nil)
	p.Sleep = recordingSleep(&slept)

	calls := 0
	n, err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, slept)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := Fixed(5, 0, func(err error) bool { return !errors.Is(err, errFatal) })
	calls := 0
	n, err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errFatal
	})
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
	var ex *Exhausted
	assert.False(t, errors.As(err, &ex))
}

func TestDoReportsExhaustion(t *testing.T) {
	var slept []time.Duration
	p := Linear(3, 2*time.Second, nil)
	p.Sleep = recordingSleep(&slept)

	n, err := p.Do(context.Background(), func(context.Context, int) error { return errFlaky })
	assert.Equal(t, 3, n)
	var ex *Exhausted
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Fixed(3, time.Second, nil).Do(ctx, func(context.Context, int) error {
		t.Fatal("op must not run")
		return nil
	})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialDelay(t *testing.T) {
	p := Exponential(10, time.Second, 10*time.Second, nil)
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(8))
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	b := Backoff{Min: time.Millisecond, Max: 3 * time.Millisecond}
	ctx := context.Background()
	require.True(t, b.Wait(ctx))
	assert.Equal(t, 2*time.Millisecond, b.next)
	require.True(t, b.Wait(ctx))
	assert.Equal(t, 3*time.Millisecond, b.next)
	b.Reset()
	require.True(t, b.Wait(ctx))
	assert.Equal(t, 2*time.Millisecond, b.next)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, b.Wait(cancelled))
}
