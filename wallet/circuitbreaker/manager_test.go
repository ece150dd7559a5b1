//go:build unit

package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jose254W/cards/wallet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

type recordingListener struct {
	mu          sync.Mutex
	transitions []State
	notified    chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{notified: make(chan struct{}, 8)}
}

func (l *recordingListener) OnStateChange(_ string, _ State, to State) {
	l.mu.Lock()
	l.transitions = append(l.transitions, to)
	l.mu.Unlock()

	l.notified <- struct{}{}
}

func tripFast() Config {
	return Config{MaxRequests: 1, Interval: time.Minute, Timeout: 50 * time.Millisecond, ConsecutiveFailures: 2}
}

func failing() (any, error) { return nil, errBackend }

func TestGetOrCreateReturnsSameBreaker(t *testing.T) {
	m := NewManager(log.NewNop())

	first, err := m.GetOrCreate("payments", HTTPServiceConfig())
	require.NoError(t, err)

	_, _ = first.Execute(failing)

	second, err := m.GetOrCreate("payments", HTTPServiceConfig())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.Counts().TotalFailures)
}

func TestGetOrCreateRejectsInvalidConfig(t *testing.T) {
	m := NewManager(nil)

	_, err := m.GetOrCreate("payments", Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = m.GetOrCreate("payments", Config{ConsecutiveFailures: 1, FailureRatio: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExecuteUnknownService(t *testing.T) {
	_, err := NewManager(nil).Execute("missing", failing)
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(nil)
	_, err := m.GetOrCreate("payments", tripFast())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = m.Execute("payments", failing)
		assert.ErrorIs(t, err, errBackend)
	}

	assert.Equal(t, StateOpen, m.GetState("payments"))
	assert.False(t, m.IsHealthy("payments"))

	_, err = m.Execute("payments", func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	m := NewManager(nil)
	_, err := m.GetOrCreate("payments", tripFast())
	require.NoError(t, err)

	_, _ = m.Execute("payments", failing)
	_, _ = m.Execute("payments", failing)
	require.Equal(t, StateOpen, m.GetState("payments"))

	require.Eventually(t, func() bool { return m.GetState("payments") == StateHalfOpen }, time.Second, 10*time.Millisecond)

	result, err := m.Execute("payments", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, m.GetState("payments"))
}

func TestIsSuccessfulKeepsBusinessErrorsFromTripping(t *testing.T) {
	rejected := errors.New("insufficient funds")

	cfg := tripFast()
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, rejected) }

	m := NewManager(nil)
	_, err := m.GetOrCreate("payments", cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = m.Execute("payments", func() (any, error) { return nil, rejected })
		assert.ErrorIs(t, err, rejected)
	}

	assert.Equal(t, StateClosed, m.GetState("payments"))
	assert.Equal(t, uint32(0), m.GetCounts("payments").TotalFailures)
}

func TestResetClosesBreaker(t *testing.T) {
	m := NewManager(nil)
	_, err := m.GetOrCreate("payments", tripFast())
	require.NoError(t, err)

	_, _ = m.Execute("payments", failing)
	_, _ = m.Execute("payments", failing)
	require.Equal(t, StateOpen, m.GetState("payments"))

	m.Reset("payments")

	assert.Equal(t, StateClosed, m.GetState("payments"))
	assert.Equal(t, Counts{}, m.GetCounts("payments"))
}

func TestListenersAreNotified(t *testing.T) {
	m := NewManager(nil)
	listener := newRecordingListener()
	m.RegisterStateChangeListener(listener)
	m.RegisterStateChangeListener(nil)

	_, err := m.GetOrCreate("payments", tripFast())
	require.NoError(t, err)

	_, _ = m.Execute("payments", failing)
	_, _ = m.Execute("payments", failing)

	select {
	case <-listener.notified:
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Equal(t, []State{StateOpen}, listener.transitions)
}

func TestUnknownServiceState(t *testing.T) {
	m := NewManager(nil)

	assert.Equal(t, StateUnknown, m.GetState("nope"))
	assert.Equal(t, Counts{}, m.GetCounts("nope"))
}

func TestReadyToTripByRatio(t *testing.T) {
	cfg := Config{MinRequests: 4, FailureRatio: 0.5}

	assert.False(t, cfg.readyToTrip(3, 3, 0))
	assert.True(t, cfg.readyToTrip(4, 2, 0))
	assert.False(t, cfg.readyToTrip(4, 1, 0))
}
