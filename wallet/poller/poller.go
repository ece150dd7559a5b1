package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jose254W/cards/wallet/backoff"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"github.com/jose254W/cards/wallet/runtime"
)

const (
	// DefaultInterval is used when Config.Interval is zero.
	DefaultInterval = 30 * time.Second

	component = "wallet.poller"
)

var (
	// ErrAlreadyRunning is returned by Start on a running poller.
	ErrAlreadyRunning = errors.New("poller already running")
	// ErrNilRefresher is returned by New without a Refresher.
	ErrNilRefresher = errors.New("poller refresher is nil")
)

// Refresher is the work a poll performs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Config configures a Poller.
type Config struct {
	Interval time.Duration
	// MaxBackoff caps the extra wait added after failures. Defaults to ten intervals.
	MaxBackoff time.Duration
	Logger     log.Logger
	Metrics    *metrics.MetricsFactory
}

// Poller calls its Refresher every interval until stopped.
type Poller struct {
	refresher Refresher
	interval  time.Duration
	policy    backoff.Policy
	logger    log.Logger
	metrics   *metrics.MetricsFactory
	trigger   chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	failures int
}

// New validates cfg and returns a stopped poller.
func New(refresher Refresher, cfg Config) (*Poller, error) {
	if refresher == nil {
		return nil, ErrNilRefresher
	}

	if cfg.Interval < 0 || cfg.MaxBackoff < 0 {
		return nil, fmt.Errorf("poller: negative interval or backoff")
	}

	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 10 * cfg.Interval
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNopFactory()
	}

	return &Poller{
		refresher: refresher,
		interval:  cfg.Interval,
		policy:    backoff.Policy{Base: cfg.Interval, Max: cfg.MaxBackoff},
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		trigger:   make(chan struct{}, 1),
	}, nil
}

// Start launches the polling loop. The first poll runs after one interval;
// call TriggerNow for an immediate one.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.cancel, p.done, p.failures = cancel, done, 0

	runtime.SafeGoWithContextAndComponent(ctx, p.logger, component, "loop", runtime.KeepRunning, func(ctx context.Context) {
		defer close(done)

		p.loop(ctx)
	})

	return nil
}

// Stop ends the loop and waits for an in-progress poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Running reports whether Start was called without a matching Stop.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cancel != nil
}

// TriggerNow requests a poll without waiting for the interval. Requests made
// while one is already queued collapse into it.
func (p *Poller) TriggerNow() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-p.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		err := p.poll(ctx)
		if ctx.Err() != nil {
			return
		}

		timer.Reset(p.next(ctx, err))
	}
}

func (p *Poller) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			runtime.HandlePanicValue(ctx, p.logger, r, component, "poll")

			err = fmt.Errorf("%w: %v", runtime.ErrPanic, r)
		}
	}()

	return p.refresher.Refresh(ctx)
}

func (p *Poller) next(ctx context.Context, err error) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		if p.failures > 0 {
			p.logger.Log(ctx, log.LevelInfo, "resync poll recovered", log.Int("failures", p.failures))
		}

		p.failures = 0
		p.recordPoll(ctx, "success")

		return p.interval
	}

	p.failures++
	p.recordPoll(ctx, "failure")

	wait := p.interval + p.policy.Delay(p.failures-1)

	p.logger.Log(ctx, log.LevelWarn, "resync poll failed",
		log.Err(err),
		log.Int("failures", p.failures),
		log.Duration("next_poll_in", wait),
	)

	return wait
}

func (p *Poller) recordPoll(ctx context.Context, outcome string) {
	if err := p.metrics.RecordPoll(ctx, outcome); err != nil {
		p.logger.Log(ctx, log.LevelDebug, "failed to record poll metric", log.Err(err))
	}
}

// Failures returns the number of consecutive failed polls.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.failures
}
