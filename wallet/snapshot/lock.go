package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/jose254W/cards/wallet/log"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
)

const maxLockTries = 100

var (
	// ErrLocked is returned when another writer holds the account's snapshot lock.
	ErrLocked = errors.New("snapshot is locked by another writer")
	// ErrInvalidLockOptions is returned by WithLock for unusable options.
	ErrInvalidLockOptions = errors.New("invalid snapshot lock options")
)

// LockOptions configures the per-account write lock.
type LockOptions struct {
	// Expiry is when a lock left by a crashed writer lapses.
	Expiry      time.Duration
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
}

// DefaultLockOptions suits snapshot writes that finish in milliseconds.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:      5 * time.Second,
		Tries:       5,
		RetryDelay:  100 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

func (o LockOptions) validate() error {
	switch {
	case o.Expiry <= 0:
		return fmt.Errorf("%w: expiry must be greater than 0", ErrInvalidLockOptions)
	case o.Tries < 1 || o.Tries > maxLockTries:
		return fmt.Errorf("%w: tries must be between 1 and %d", ErrInvalidLockOptions, maxLockTries)
	case o.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidLockOptions)
	case o.DriftFactor < 0 || o.DriftFactor >= 1:
		return fmt.Errorf("%w: drift factor must be in [0, 1)", ErrInvalidLockOptions)
	}

	return nil
}

type writeLock struct {
	rs   *redsync.Redsync
	opts LockOptions
}

// WithLock serialises Save and Delete per account across processes using a
// redlock mutex stored next to the snapshot. NewRedisPersister fails when
// opts are invalid.
func WithLock(opts LockOptions) RedisOption {
	return func(p *RedisPersister) {
		if err := opts.validate(); err != nil {
			p.optErr = err

			return
		}

		p.lock = &writeLock{rs: redsync.New(goredis.NewPool(p.client)), opts: opts}
	}
}

// LockKey returns the redis key of accountID's write lock.
func (p *RedisPersister) LockKey(accountID string) string {
	return p.Key(accountID) + ":lock"
}

// locked runs fn while holding accountID's write lock, or directly when the
// persister was built without WithLock.
func (p *RedisPersister) locked(ctx context.Context, accountID string, fn func(context.Context) error) error {
	if p.lock == nil {
		return fn(ctx)
	}

	ctx, span := p.start(ctx, "snapshot.lock", accountID)
	defer span.End()

	mutex := p.lock.rs.NewMutex(
		p.LockKey(accountID),
		redsync.WithExpiry(p.lock.opts.Expiry),
		redsync.WithTries(p.lock.opts.Tries),
		redsync.WithRetryDelay(p.lock.opts.RetryDelay),
		redsync.WithDriftFactor(p.lock.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || strings.Contains(err.Error(), "lock already taken") {
			err = fmt.Errorf("%w: %w", ErrLocked, err)
		}

		libOpentelemetry.HandleSpanError(&span, "Failed to acquire snapshot lock", err)

		return fmt.Errorf("snapshot lock %s: %w", accountID, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			p.logger.Log(ctx, log.LevelWarn, "snapshot lock release failed",
				log.String("account_id", accountID),
				log.Bool("unlock_ok", ok),
				log.Err(err),
			)
		}
	}()

	return fn(ctx)
}
