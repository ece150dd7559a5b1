package errgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/runtime"
)

// ErrPanicRecovered is returned when a goroutine in the group panics.
var ErrPanicRecovered = errors.New("errgroup: panic recovered")

// Group is a set of goroutines sharing a cancellation context. The first
// error cancels the context and is returned by Wait; later errors are dropped.
// The zero value is usable and never cancels anything.
type Group struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	errOnce   sync.Once
	err       error
	logger    log.Logger
	component string
}

// WithContext returns a Group and a context canceled on the first error or
// when Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	return &Group{ctx: ctx, cancel: cancel, component: "errgroup"}, ctx
}

// SetLogger sets the logger used to report recovered panics.
func (grp *Group) SetLogger(logger log.Logger) {
	if grp == nil {
		return
	}

	grp.logger = logger
}

// SetComponent sets the component label attached to recovered panics.
func (grp *Group) SetComponent(component string) {
	if grp == nil || component == "" {
		return
	}

	grp.component = component
}

// Go runs fn in a new goroutine.
func (grp *Group) Go(fn func() error) {
	grp.wg.Add(1)

	go func() {
		defer grp.wg.Done()
		defer grp.recoverPanic()

		if err := fn(); err != nil {
			grp.fail(err)
		}
	}()
}

// Wait blocks until every goroutine returns, then cancels the group context
// and returns the first error.
func (grp *Group) Wait() error {
	grp.wg.Wait()

	if grp.cancel != nil {
		grp.cancel()
	}

	return grp.err
}

func (grp *Group) recoverPanic() {
	recovered := recover()
	if recovered == nil {
		return
	}

	ctx := grp.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var logger runtime.Logger
	if grp.logger != nil {
		logger = grp.logger
	}

	component := grp.component
	if component == "" {
		component = "errgroup"
	}

	runtime.HandlePanicValue(ctx, logger, recovered, component, "group.Go")
	grp.fail(fmt.Errorf("%w: %v", ErrPanicRecovered, recovered))
}

func (grp *Group) fail(err error) {
	grp.errOnce.Do(func() {
		grp.err = err

		if grp.cancel != nil {
			grp.cancel()
		}
	})
}
