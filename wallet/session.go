package wallet

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/jose254W/cards/wallet/auth"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/ledger"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"github.com/jose254W/cards/wallet/poller"
	"github.com/jose254W/cards/wallet/record"
	"github.com/jose254W/cards/wallet/snapshot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	component = "wallet"

	closeFlushTimeout = 5 * time.Second
)

// Order selects the ListTransactions ordering.
type Order = ledger.Order

const (
	NewestFirst = ledger.NewestFirst
	OldestFirst = ledger.OldestFirst
)

// Session is the wallet engine for one account.
type Session struct {
	cfg       Config
	remote    Remote
	store     *ledger.Store
	logger    log.Logger
	tracer    trace.Tracer
	metrics   *metrics.MetricsFactory
	tokens    auth.TokenProvider
	persister snapshot.Persister
	ids       record.IDGenerator
	now       func() time.Time
	poller    *poller.Poller
	polling   bool

	mu       sync.Mutex
	closed   bool
	inflight map[string]*Handle
	awaiting map[string]awaitingOp
	wg       sync.WaitGroup
}

type awaitingOp struct {
	handle  *Handle
	pending record.Record
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the session tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMetricsFactory sets the factory used for wallet metrics.
func WithMetricsFactory(factory *metrics.MetricsFactory) Option {
	return func(s *Session) {
		if factory != nil {
			s.metrics = factory
		}
	}
}

// WithTokenProvider makes submissions fail with ErrUnauthenticated when no
// usable token is available.
func WithTokenProvider(tokens auth.TokenProvider) Option {
	return func(s *Session) { s.tokens = tokens }
}

// WithPersister restores the ledger on NewSession and saves it after
// every Refresh and on Close.
func WithPersister(p snapshot.Persister) Option {
	return func(s *Session) { s.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the provisional id generator.
func WithIDGenerator(ids record.IDGenerator) Option {
	return func(s *Session) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithPolling starts a background Refresh every Config.PollInterval.
func WithPolling() Option {
	return func(s *Session) { s.polling = true }
}

// NewSession builds a session for cfg.AccountID over remote. When a persister
// is configured the stored snapshot is loaded into the ledger.
func NewSession(ctx context.Context, cfg Config, remote Remote, opts ...Option) (*Session, error) {
	if remote == nil {
		return nil, ErrNilRemote
	}

	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		remote:   remote,
		logger:   log.NewNop(),
		tracer:   otel.Tracer(constant.TelemetrySDKName),
		metrics:  metrics.NewNopFactory(),
		ids:      record.NewULIDGenerator(),
		now:      time.Now,
		inflight: make(map[string]*Handle),
		awaiting: make(map[string]awaitingOp),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.logger = s.logger.With(log.String("account_id", cfg.AccountID))
	s.store = ledger.New(ledger.WithLogger(s.logger))

	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	if s.polling {
		p, err := poller.New(poller.RefresherFunc(func(ctx context.Context) error {
			_, err := s.Refresh(ctx)
			return err
		}), poller.Config{Interval: cfg.PollInterval, Logger: s.logger, Metrics: s.metrics})
		if err != nil {
			return nil, fmt.Errorf("new session: %w", err)
		}

		if err := p.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("new session: %w", err)
		}

		s.poller = p
	}

	return s, nil
}

func (s *Session) restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "wallet.restore")
	defer span.End()

	records, err := s.persister.Load(ctx, s.cfg.AccountID)
	if err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to load snapshot", err)

		return fmt.Errorf("restore ledger: %w", err)
	}

	if err := s.store.Restore(records); err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to restore snapshot", err)

		return fmt.Errorf("restore ledger: %w", err)
	}

	span.SetAttributes(attribute.Int("wallet.restored_records", len(records)))

	if len(records) > 0 {
		s.logger.Log(ctx, log.LevelInfo, "ledger restored from snapshot", log.Int("records", len(records)))
	}

	return nil
}

// AccountID returns the account the session serves.
func (s *Session) AccountID() string { return s.cfg.AccountID }

// GetBalance returns the balance of currency. PENDING records count only when
// includePending is true; FAILED records never count.
func (s *Session) GetBalance(currency money.Currency, includePending bool) money.Money {
	return s.store.Balance(currency, includePending)
}

// ListTransactions iterates over the ledger as of the call.
func (s *Session) ListTransactions(order Order) iter.Seq[record.Record] {
	return s.store.Transactions(order)
}

// Transaction returns the record stored under id. A provisional id that was
// replaced by a server record resolves to that record.
func (s *Session) Transaction(id string) (record.Record, bool) {
	return s.store.Lookup(id)
}

// InFlight returns the number of operations still SUBMITTING.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inflight)
}

// TriggerRefresh asks the background poller for an immediate Refresh. It is a
// no-op without WithPolling.
func (s *Session) TriggerRefresh() {
	if s.poller != nil {
		s.poller.TriggerNow()
	}
}

// Close stops polling, waits for in-flight operations until ctx ends and
// saves the ledger snapshot. Later submissions fail with ErrSessionClosed.
// Operations accepted but not yet settled by the service stay PENDING in the
// snapshot and their handles stay unresolved.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	s.mu.Unlock()

	if s.poller != nil {
		s.poller.Stop()
	}

	drained := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(drained)
	}()

	var waitErr error

	select {
	case <-drained:
	case <-ctx.Done():
		waitErr = fmt.Errorf("close: %d operations still in flight: %w", s.InFlight(), ctx.Err())
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeFlushTimeout)
	defer cancel()

	persistErr := s.persist(flushCtx)

	s.logger.Log(ctx, log.LevelInfo, "wallet session closed", log.Int("records", s.store.Len()))

	return errors.Join(waitErr, persistErr)
}

func (s *Session) persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	if err := s.persister.Save(ctx, s.cfg.AccountID, s.store.Records()); err != nil {
		s.logger.Log(ctx, log.LevelWarn, "failed to save ledger snapshot", log.Err(err))

		return fmt.Errorf("save ledger snapshot: %w", err)
	}

	return nil
}

// register reserves an in-flight slot for h. It fails once the session is closed.
func (s *Session) register(id string, h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.inflight[id] = h
	s.wg.Add(1)

	return nil
}

func (s *Session) unregister(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[id]; !ok {
		return len(s.inflight)
	}

	delete(s.inflight, id)
	s.wg.Done()

	return len(s.inflight)
}

func (s *Session) isInFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.inflight[id]

	return ok
}

// tracking resolves the request-scoped logger, tracer and correlation id,
// falling back to the session's own.
//
//nolint:ireturn
func (s *Session) tracking(ctx context.Context) (log.Logger, trace.Tracer, string) {
	logger, tracer := s.logger, s.tracer

	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	headerID := ""

	if values != nil {
		if values.Logger != nil {
			logger = values.Logger.With(log.String("account_id", s.cfg.AccountID))
		}

		if values.Tracer != nil {
			tracer = values.Tracer
		}

		headerID = values.HeaderID
	}

	headerID = resolveHeaderID(headerID)

	return logger.With(log.String("request_id", headerID)), tracer, headerID
}

func (s *Session) recordMetric(ctx context.Context, logger log.Logger, err error) {
	if err != nil {
		logger.Log(ctx, log.LevelDebug, "failed to record wallet metric", log.Err(err))
	}
}
