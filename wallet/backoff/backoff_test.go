//go:build unit

package backoff

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "first attempt", base: 100 * time.Millisecond, attempt: 0, want: 100 * time.Millisecond},
		{name: "third attempt", base: 100 * time.Millisecond, attempt: 3, want: 800 * time.Millisecond},
		{name: "negative attempt", base: time.Second, attempt: -4, want: time.Second},
		{name: "zero base", base: 0, attempt: 5, want: 0},
		{name: "saturates", base: time.Hour, attempt: 200, want: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestFullJitterStaysInRange(t *testing.T) {
	t.Parallel()

	assert.Zero(t, FullJitter(0))
	assert.Zero(t, FullJitter(-time.Second))

	for i := 0; i < 200; i++ {
		d := FullJitter(50 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
	}
}

func TestPolicyDelayIsCapped(t *testing.T) {
	t.Parallel()

	p := Policy{Base: time.Second, Max: 3 * time.Second}

	for attempt := 0; attempt < 10; attempt++ {
		assert.LessOrEqual(t, p.Delay(attempt), 3*time.Second)
	}

	assert.Equal(t, time.Second, p.Capped(0))
	assert.Equal(t, 2*time.Second, p.Capped(1))
	assert.Equal(t, 3*time.Second, p.Capped(4))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), Policy{Base: time.Millisecond, MaxAttempts: 5}, nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursRetryable(t *testing.T) {
	t.Parallel()

	permanent := errors.New("rejected")
	calls := 0

	err := Retry(context.Background(), Policy{Base: time.Millisecond, MaxAttempts: 5},
		func(err error) bool { return !errors.Is(err, permanent) },
		func(context.Context) error {
			calls++
			return permanent
		})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryReturnsLastErrorAfterAttempts(t *testing.T) {
	t.Parallel()

	transient := errors.New("unavailable")
	calls := 0

	err := Retry(context.Background(), Policy{Base: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3}, nil, func(context.Context) error {
		calls++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	transient := errors.New("unavailable")

	err := Retry(ctx, Policy{Base: time.Hour, MaxAttempts: 3}, nil, func(context.Context) error {
		cancel()
		return transient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, transient)
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SleepWithContext(context.Background(), 0))
	assert.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, SleepWithContext(ctx, time.Hour), context.Canceled)
}
