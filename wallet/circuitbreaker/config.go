package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by GetOrCreate for unusable configurations.
var ErrInvalidConfig = errors.New("invalid circuit breaker config")

// DefaultConfig provides balanced settings for most services
func DefaultConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 15,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// HTTPServiceConfig is tuned for the payments service: it trips after five
// consecutive failures and probes again after ten seconds.
func HTTPServiceConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

func (c Config) validate() error {
	if c.ConsecutiveFailures == 0 && c.MinRequests == 0 {
		return fmt.Errorf("%w: either ConsecutiveFailures or MinRequests must be set", ErrInvalidConfig)
	}

	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return fmt.Errorf("%w: FailureRatio must be in [0, 1], got %v", ErrInvalidConfig, c.FailureRatio)
	}

	if c.Interval < 0 || c.Timeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	return nil
}

func (c Config) readyToTrip(requests, totalFailures, consecutiveFailures uint32) bool {
	if c.ConsecutiveFailures > 0 && consecutiveFailures >= c.ConsecutiveFailures {
		return true
	}

	if c.MinRequests == 0 || requests < c.MinRequests || requests == 0 {
		return false
	}

	return float64(totalFailures)/float64(requests) >= c.FailureRatio
}
