package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// Manager manages circuit breakers for external services.
type Manager interface {
	// GetOrCreate returns the breaker for serviceName, creating it with config.
	GetOrCreate(serviceName string, config Config) (CircuitBreaker, error)

	// Execute runs fn through the breaker registered for serviceName.
	Execute(serviceName string, fn func() (any, error)) (any, error)

	GetState(serviceName string) State
	GetCounts(serviceName string) Counts

	// IsHealthy reports whether the breaker is closed.
	IsHealthy(serviceName string) bool

	// Reset recreates the breaker in the closed state.
	Reset(serviceName string)

	RegisterStateChangeListener(listener StateChangeListener)
}

// CircuitBreaker is a single service breaker.
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() State
	Counts() Counts
}

// Config holds circuit breaker configuration.
type Config struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // consecutive failures that trip the breaker
	FailureRatio        float64       // failure ratio that trips the breaker
	MinRequests         uint32        // requests required before the ratio applies

	// IsSuccessful classifies results. Errors it accepts do not count as
	// failures; the remote client uses it so business rejections never trip
	// the breaker. Nil treats every error as a failure.
	IsSuccessful func(err error) bool
}

// State represents circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeListener is notified when a breaker changes state.
type StateChangeListener interface {
	OnStateChange(serviceName string, from State, to State)
}

type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func (cb *circuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

func (cb *circuitBreaker) State() State {
	return convertGobreakerState(cb.breaker.State())
}

func (cb *circuitBreaker) Counts() Counts {
	return convertCounts(cb.breaker.Counts())
}

func convertGobreakerState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

func convertCounts(counts gobreaker.Counts) Counts {
	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
