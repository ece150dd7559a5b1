package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/record"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const snapshotVersion = 1

var (
	// ErrNilClient is returned when a RedisPersister has no client.
	ErrNilClient = errors.New("snapshot redis client is nil")
	// ErrEmptyAccount is returned for a blank account id.
	ErrEmptyAccount = errors.New("snapshot account id is empty")
	// ErrUnsupportedVersion is returned when a stored snapshot has an unknown version.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// Persister loads and stores the records of one account.
type Persister interface {
	// Load returns the stored records, or nil when nothing is stored.
	Load(ctx context.Context, accountID string) ([]record.Record, error)
	Save(ctx context.Context, accountID string, records []record.Record) error
	Delete(ctx context.Context, accountID string) error
}

type envelope struct {
	Version int             `json:"version"`
	SavedAt int64           `json:"savedAt"`
	Records []record.Record `json:"records"`
}

// RedisPersister stores snapshots in redis.
type RedisPersister struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger log.Logger
	tracer trace.Tracer
	now    func() time.Time
	lock   *writeLock
	optErr error
}

// RedisOption configures a RedisPersister.
type RedisOption func(*RedisPersister)

// WithTTL sets the expiry of stored snapshots. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(p *RedisPersister) {
		if ttl >= 0 {
			p.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides the wallet:ledger: key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisPersister) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) RedisOption {
	return func(p *RedisPersister) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) RedisOption {
	return func(p *RedisPersister) {
		if t != nil {
			p.tracer = t
		}
	}
}

// NewRedisPersister returns a persister over client.
func NewRedisPersister(client redis.UniversalClient, opts ...RedisOption) (*RedisPersister, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	p := &RedisPersister{
		client: client,
		prefix: constant.SnapshotKeyPrefix,
		logger: log.NewNop(),
		tracer: otel.Tracer(constant.TelemetrySDKName),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if p.optErr != nil {
		return nil, p.optErr
	}

	return p, nil
}

// Key returns the redis key holding accountID's snapshot.
func (p *RedisPersister) Key(accountID string) string {
	return p.prefix + accountID
}

func (p *RedisPersister) start(ctx context.Context, name, accountID string) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String(constant.AttrDBSystem, constant.DBSystemRedis),
		attribute.String(constant.AttrWalletAccountID, accountID),
	)

	return ctx, span
}

// Load implements Persister.
func (p *RedisPersister) Load(ctx context.Context, accountID string) ([]record.Record, error) {
	accountID, err := account(accountID)
	if err != nil {
		return nil, err
	}

	ctx, span := p.start(ctx, "snapshot.load", accountID)
	defer span.End()

	raw, err := p.client.Get(ctx, p.Key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to load snapshot", err)

		return nil, fmt.Errorf("snapshot load %s: %w", accountID, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to decode snapshot", err)

		return nil, fmt.Errorf("snapshot decode %s: %w", accountID, err)
	}

	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot load %s: %w: %d", accountID, ErrUnsupportedVersion, env.Version)
	}

	p.logger.Log(ctx, log.LevelDebug, "snapshot loaded",
		log.String("account_id", accountID),
		log.Int("records", len(env.Records)),
	)

	return env.Records, nil
}

// Save implements Persister.
func (p *RedisPersister) Save(ctx context.Context, accountID string, records []record.Record) error {
	accountID, err := account(accountID)
	if err != nil {
		return err
	}

	ctx, span := p.start(ctx, "snapshot.save", accountID)
	defer span.End()

	raw, err := json.Marshal(envelope{
		Version: snapshotVersion,
		SavedAt: p.now().UnixMilli(),
		Records: nonNil(records),
	})
	if err != nil {
		return fmt.Errorf("snapshot encode %s: %w", accountID, err)
	}

	err = p.locked(ctx, accountID, func(ctx context.Context) error {
		return p.client.Set(ctx, p.Key(accountID), raw, p.ttl).Err()
	})
	if err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to save snapshot", err)

		return fmt.Errorf("snapshot save %s: %w", accountID, err)
	}

	p.logger.Log(ctx, log.LevelDebug, "snapshot saved",
		log.String("account_id", accountID),
		log.Int("records", len(records)),
	)

	return nil
}

// Delete implements Persister.
func (p *RedisPersister) Delete(ctx context.Context, accountID string) error {
	accountID, err := account(accountID)
	if err != nil {
		return err
	}

	ctx, span := p.start(ctx, "snapshot.delete", accountID)
	defer span.End()

	err = p.locked(ctx, accountID, func(ctx context.Context) error {
		return p.client.Del(ctx, p.Key(accountID)).Err()
	})
	if err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to delete snapshot", err)

		return fmt.Errorf("snapshot delete %s: %w", accountID, err)
	}

	return nil
}

// MemoryPersister keeps snapshots in memory. The zero value is ready to use.
type MemoryPersister struct {
	mu    sync.Mutex
	saved map[string][]record.Record
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load implements Persister.
func (m *MemoryPersister) Load(_ context.Context, accountID string) ([]record.Record, error) {
	accountID, err := account(accountID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.saved[accountID]
	if !ok {
		return nil, nil
	}

	return slices.Clone(stored), nil
}

// Save implements Persister.
func (m *MemoryPersister) Save(_ context.Context, accountID string, records []record.Record) error {
	accountID, err := account(accountID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saved == nil {
		m.saved = make(map[string][]record.Record)
	}

	m.saved[accountID] = slices.Clone(nonNil(records))

	return nil
}

// Delete implements Persister.
func (m *MemoryPersister) Delete(_ context.Context, accountID string) error {
	accountID, err := account(accountID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.saved, accountID)

	return nil
}

func account(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrEmptyAccount
	}

	return id, nil
}

func nonNil(records []record.Record) []record.Record {
	if records == nil {
		return []record.Record{}
	}

	return records
}
