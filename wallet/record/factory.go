package record

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/money"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces provisional ids at a given instant.
type IDGenerator interface {
	NewID(at time.Time) string
}

// ULIDGenerator issues "local-" prefixed, monotonic ULIDs. It is safe for
// concurrent use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator returns a generator seeded from crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewID returns a provisional id whose ULID timestamp is at.
func (g *ULIDGenerator) NewID(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return constant.LocalIDPrefix + ulid.MustNew(ulid.Timestamp(at), g.entropy).String()
}

var defaultGenerator = NewULIDGenerator()

type pendingOptions struct {
	now       func() time.Time
	ids       IDGenerator
	note      string
	direction Direction
}

// Option configures NewPending.
type Option func(*pendingOptions)

// WithClock sets the clock that stamps the record.
func WithClock(now func() time.Time) Option {
	return func(o *pendingOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces the default ULID generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *pendingOptions) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithNote attaches a free-form note.
func WithNote(note string) Option {
	return func(o *pendingOptions) { o.note = strings.TrimSpace(note) }
}

// WithDirection sets the direction of a TRANSFER. Other types ignore it.
func WithDirection(d Direction) Option {
	return func(o *pendingOptions) { o.direction = d }
}

// NewPending builds a PENDING record with a provisional id. PAY and TRANSFER
// require a counterparty.
func NewPending(t Type, amount money.Money, counterparty string, opts ...Option) (Record, error) {
	o := pendingOptions{now: time.Now, ids: defaultGenerator}
	for _, opt := range opts {
		opt(&o)
	}

	if !t.Valid() {
		return Record{}, constant.NewValidationError("type", "unknown record type "+quoted(string(t)))
	}

	counterparty = strings.TrimSpace(counterparty)
	if (t == TypePay || t == TypeTransfer) && counterparty == "" {
		return Record{}, constant.NewValidationError("counterparty", string(t)+" requires a counterparty")
	}

	direction := DefaultDirection(t)
	if t == TypeTransfer && o.direction != "" {
		direction = o.direction
	}

	now := o.now()

	r := Record{
		ID:           o.ids.NewID(now),
		Type:         t,
		Direction:    direction,
		Money:        amount,
		Status:       StatusPending,
		Timestamp:    now.UnixMilli(),
		Counterparty: counterparty,
		Note:         o.note,
	}

	if err := r.Validate(); err != nil {
		return Record{}, err
	}

	return r, nil
}
