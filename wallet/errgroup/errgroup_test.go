//go:build unit

package errgroup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jose254W/cards/wallet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSucceed(t *testing.T) {
	t.Parallel()

	grp, _ := WithContext(context.Background())

	var done atomic.Int32

	for i := 0; i < 3; i++ {
		grp.Go(func() error {
			done.Add(1)
			return nil
		})
	}

	require.NoError(t, grp.Wait())
	assert.Equal(t, int32(3), done.Load())
}

func TestFirstErrorCancelsContext(t *testing.T) {
	t.Parallel()

	historyErr := errors.New("history fetch failed")
	grp, ctx := WithContext(context.Background())

	grp.Go(func() error { return historyErr })
	grp.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return errors.New("context was not canceled")
		}
	})

	assert.ErrorIs(t, grp.Wait(), historyErr)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWaitCancelsContextOnSuccess(t *testing.T) {
	t.Parallel()

	grp, ctx := WithContext(context.Background())
	grp.Go(func() error { return nil })

	require.NoError(t, grp.Wait())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	grp, ctx := WithContext(context.Background())
	grp.SetLogger(log.NewNop())
	grp.SetComponent("wallet.refresh")

	grp.Go(func() error { panic("balance decoder") })

	err := grp.Wait()
	assert.ErrorIs(t, err, ErrPanicRecovered)
	assert.Contains(t, err.Error(), "balance decoder")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestZeroValueGroup(t *testing.T) {
	t.Parallel()

	var grp Group

	failure := errors.New("boom")
	grp.Go(func() error { return failure })

	assert.ErrorIs(t, grp.Wait(), failure)
}

func TestNilReceiverSetters(t *testing.T) {
	t.Parallel()

	var grp *Group

	assert.NotPanics(t, func() {
		grp.SetLogger(log.NewNop())
		grp.SetComponent("x")
	})
}
