package backoff

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand/v2"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt, saturating at math.MaxInt64.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	attempt = min(max(attempt, 0), maxShift)
	multiplier := int64(1) << attempt

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in [0, delay). It prefers crypto/rand
// and falls back to math/rand/v2 when the system entropy source fails.
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return time.Duration(mrand.Int64N(int64(delay))) // #nosec G404 -- jitter only
	}

	return time.Duration(n.Int64())
}

// ExponentialWithJitter returns a random duration in [0, base * 2^attempt).
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// Policy bounds a retry loop: Delay(attempt) is ExponentialWithJitter capped at Max.
type Policy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultReadPolicy is used for idempotent payments service reads.
var DefaultReadPolicy = Policy{Base: 200 * time.Millisecond, Max: 2 * time.Second, MaxAttempts: 3}

// Delay returns the jittered, capped wait before retry number attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := ExponentialWithJitter(p.Base, attempt)
	if p.Max > 0 && d > p.Max {
		return p.Max
	}

	return d
}

// Capped returns the un-jittered exponential delay capped at Max. The poller
// uses it to stretch its interval after consecutive failures.
func (p Policy) Capped(attempt int) time.Duration {
	d := Exponential(p.Base, attempt)
	if p.Max > 0 && d > p.Max {
		return p.Max
	}

	return d
}

// Retry calls fn until it succeeds, retryable reports false, the policy runs out
// of attempts or ctx ends. The last error from fn is returned.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if retryable != nil && !retryable(err) {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		if sleepErr := SleepWithContext(ctx, p.Delay(attempt)); sleepErr != nil {
			return fmt.Errorf("%w (last error: %w)", sleepErr, err)
		}
	}

	return err
}

// SleepWithContext sleeps for duration or until ctx ends.
// Zero or negative durations return immediately.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
