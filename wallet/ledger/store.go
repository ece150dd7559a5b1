package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/jose254W/cards/wallet/assert"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	"github.com/jose254W/cards/wallet/reconcile"
	"github.com/jose254W/cards/wallet/record"
)

const component = "ledger"

var (
	// ErrDuplicateID is returned when a record id is already stored.
	ErrDuplicateID = constant.ErrDuplicateID
	// ErrNotFound is returned when a record id is not stored.
	ErrNotFound = constant.ErrNotFound
	// ErrSuperseded is returned by MarkFailed when a resync already replaced
	// the placeholder with a server record. The superseding record is returned
	// alongside it.
	ErrSuperseded = errors.New("record superseded by server record")
)

// Order selects the iteration direction of Transactions.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

type totalsKey struct {
	currency money.Currency
	status   record.Status
}

// Store is an insertion-ordered set of records keyed by id.
type Store struct {
	mu         sync.Mutex
	records    []record.Record
	index      map[string]int
	totals     map[totalsKey]int64
	misses     map[string]int
	superseded map[string]string
	logger     log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger that receives invariant violations.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		index:      make(map[string]int),
		totals:     make(map[totalsKey]int64),
		misses:     make(map[string]int),
		superseded: make(map[string]string),
		logger:     log.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Append inserts a new PENDING record.
func (s *Store) Append(r record.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("append %s: %w", r.ID, err)
	}

	if r.Status != record.StatusPending {
		return fmt.Errorf("append %s: %w", r.ID, constant.NewValidationError("status", "only PENDING records can be appended"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[r.ID]; exists {
		return s.violation("append", r.ID, ErrDuplicateID, "duplicate record id")
	}

	totals, err := s.retotal(nil, []record.Record{r})
	if err != nil {
		return fmt.Errorf("append %s: %w", r.ID, err)
	}

	s.totals = totals
	s.index[r.ID] = len(s.records)
	s.records = append(s.records, r)

	return nil
}

// Confirm replaces the PENDING placeholder provisionalID with serverRecord,
// stored as CONFIRMED at the placeholder's position. When serverRecord's id is
// already stored, that entry is overwritten and the placeholder dropped.
func (s *Store) Confirm(provisionalID string, serverRecord record.Record) (record.Record, error) {
	confirmed := record.Confirmed(serverRecord)
	if confirmed.Direction == "" {
		confirmed.Direction = record.DefaultDirection(confirmed.Type)
	}

	if err := confirmed.Validate(); err != nil {
		return record.Record{}, fmt.Errorf("confirm %s: server record: %w", provisionalID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[provisionalID]
	if !ok {
		if prior, wasSuperseded := s.superseded[provisionalID]; wasSuperseded {
			return s.confirmSupersededLocked(provisionalID, prior, confirmed)
		}

		return record.Record{}, s.violation("confirm", provisionalID, ErrNotFound, "confirm of unknown placeholder")
	}

	if current := s.records[idx]; current.Status != record.StatusPending {
		return record.Record{}, fmt.Errorf("confirm %s: %w", provisionalID,
			constant.NewValidationError("status", "placeholder is "+string(current.Status)))
	}

	if err := s.replaceLocked(idx, confirmed); err != nil {
		return record.Record{}, fmt.Errorf("confirm %s: %w", provisionalID, err)
	}

	s.superseded[provisionalID] = confirmed.ID
	delete(s.misses, provisionalID)

	return confirmed, nil
}

// confirmSupersededLocked handles a confirmation that arrives after a resync
// matched the placeholder. If the resync picked a different server record of
// the same shape, that record is handed to the oldest placeholder still
// waiting for one.
func (s *Store) confirmSupersededLocked(provisionalID, prior string, confirmed record.Record) (record.Record, error) {
	if j, exists := s.index[confirmed.ID]; exists {
		if err := s.overwriteLocked(j, confirmed); err != nil {
			return record.Record{}, fmt.Errorf("confirm %s: %w", provisionalID, err)
		}
	} else {
		if err := s.insertLocked(confirmed); err != nil {
			return record.Record{}, fmt.Errorf("confirm %s: %w", provisionalID, err)
		}
	}

	s.superseded[provisionalID] = confirmed.ID

	if prior != confirmed.ID {
		if j, exists := s.index[prior]; exists {
			s.rematchLocked(s.records[j])
		}
	}

	return s.records[s.index[confirmed.ID]], nil
}

// rematchLocked removes the oldest PENDING placeholder matching claimed, which
// lost the placeholder it had been matched to.
func (s *Store) rematchLocked(claimed record.Record) {
	best := -1

	for i, r := range s.records {
		if r.Status != record.StatusPending || r.Type != claimed.Type ||
			r.Direction != claimed.Direction || r.Money != claimed.Money {
			continue
		}

		if best < 0 || record.Less(r, s.records[best]) {
			best = i
		}
	}

	if best < 0 {
		return
	}

	id := s.records[best].ID

	if err := s.removeLocked(best); err != nil {
		return
	}

	s.superseded[id] = claimed.ID
	delete(s.misses, id)
}

// MarkFailed moves a PENDING record to FAILED in place. Marking a FAILED
// record again is a no-op; marking a CONFIRMED record is a validation error.
func (s *Store) MarkFailed(id, reason string) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		if serverID, wasSuperseded := s.superseded[id]; wasSuperseded {
			if j, exists := s.index[serverID]; exists {
				return s.records[j], fmt.Errorf("mark failed %s: %w", id, ErrSuperseded)
			}
		}

		return record.Record{}, s.violation("mark_failed", id, ErrNotFound, "mark failed of unknown record")
	}

	current := s.records[idx]

	switch current.Status {
	case record.StatusFailed:
		return current, nil
	case record.StatusConfirmed:
		return record.Record{}, fmt.Errorf("mark failed %s: %w", id,
			constant.NewValidationError("status", "record is already CONFIRMED"))
	}

	failed := record.Fail(current, reason)

	totals, err := s.retotal([]record.Record{current}, []record.Record{failed})
	if err != nil {
		return record.Record{}, fmt.Errorf("mark failed %s: %w", id, err)
	}

	s.totals = totals
	s.records[idx] = failed
	delete(s.misses, id)

	return failed, nil
}

// ReplaceHistory merges a full server history through the reconciliation
// engine. Placeholders the batch does not account for stay PENDING.
func (s *Store) ReplaceHistory(batch []record.Record, opts reconcile.Options) (reconcile.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts.Misses = s.misses

	res, err := reconcile.Merge(s.records, batch, opts)
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("replace history: %w", err)
	}

	totals, err := computeTotals(res.Records)
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("replace history: %w", err)
	}

	s.records = res.Records
	s.totals = totals
	s.misses = res.Misses
	s.reindexLocked(0)

	for provisionalID, serverID := range res.Report.Matched {
		s.superseded[provisionalID] = serverID
	}

	if err := s.verifyLocked("replace_history"); err != nil {
		return res.Report, err
	}

	return res.Report, nil
}

// Restore loads a snapshot into an empty Store.
func (s *Store) Restore(records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) > 0 {
		return fmt.Errorf("restore: %w", constant.NewValidationError("ledger", "restore requires an empty ledger"))
	}

	index := make(map[string]int, len(records))

	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("restore %s: %w", r.ID, err)
		}

		if _, dup := index[r.ID]; dup {
			return fmt.Errorf("restore %s: %w", r.ID, ErrDuplicateID)
		}

		index[r.ID] = i
	}

	totals, err := computeTotals(records)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	s.records = slices.Clone(records)
	s.index = index
	s.totals = totals

	return nil
}

// Balance returns the signed sum of CONFIRMED records in currency, plus
// PENDING records when includePending is set.
func (s *Store) Balance(currency money.Currency, includePending bool) money.Money {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount := s.totals[totalsKey{currency, record.StatusConfirmed}]
	if includePending {
		amount += s.totals[totalsKey{currency, record.StatusPending}]
	}

	return money.New(amount, currency)
}

// Transactions returns the records as of this call in the requested order.
// The sequence can be ranged over any number of times.
func (s *Store) Transactions(order Order) iter.Seq[record.Record] {
	snapshot := s.Records()

	slices.SortStableFunc(snapshot, record.Compare)

	if order == NewestFirst {
		slices.Reverse(snapshot)
	}

	return func(yield func(record.Record) bool) {
		for _, r := range snapshot {
			if !yield(r) {
				return
			}
		}
	}
}

// Get returns the record stored under id.
func (s *Store) Get(id string) (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return record.Record{}, false
	}

	return s.records[idx], true
}

// Lookup is Get that follows placeholders to the server record that
// superseded them.
func (s *Store) Lookup(id string) (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range 2 {
		if idx, ok := s.index[id]; ok {
			return s.records[idx], true
		}

		next, ok := s.superseded[id]
		if !ok {
			return record.Record{}, false
		}

		id = next
	}

	return record.Record{}, false
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Records returns a copy of the records in insertion order.
func (s *Store) Records() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.records)
}

// Pending returns the PENDING records in insertion order.
func (s *Store) Pending() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]record.Record, 0)

	for _, r := range s.records {
		if r.Status == record.StatusPending {
			out = append(out, r)
		}
	}

	return out
}

// Verify re-scans the store and checks that ids are unique and that the
// running totals equal the scanned sums.
func (s *Store) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.verifyLocked("verify")
}

func (s *Store) verifyLocked(operation string) error {
	ctx := context.Background()
	asserter := assert.New(s.logger, component, operation)

	seen := make(map[string]struct{}, len(s.records))

	for i, r := range s.records {
		if _, dup := seen[r.ID]; dup {
			return s.wrapViolation(operation, r.ID, ErrDuplicateID,
				asserter.Never(ctx, "two stored records share an id", "id", r.ID))
		}

		seen[r.ID] = struct{}{}

		if err := asserter.That(ctx, s.index[r.ID] == i, "index points at the wrong position", "id", r.ID); err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
	}

	scanned, err := computeTotals(s.records)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	for _, key := range totalsKeys(scanned, s.totals) {
		if err := asserter.Equal(ctx, s.totals[key], scanned[key], "running total diverged from re-scan",
			"currency", key.currency, "status", key.status); err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
	}

	return nil
}

func (s *Store) violation(operation, id string, sentinel error, msg string) error {
	asserter := assert.New(s.logger, component, operation)

	return s.wrapViolation(operation, id, sentinel, asserter.Never(context.Background(), msg, "id", id))
}

func (s *Store) wrapViolation(operation, id string, sentinel, assertionErr error) error {
	return fmt.Errorf("%s %s: %w: %w", operation, id, sentinel, assertionErr)
}

// replaceLocked stores r at idx in place of the placeholder there. If r's id
// is stored elsewhere, that entry is overwritten and idx is removed.
func (s *Store) replaceLocked(idx int, r record.Record) error {
	old := s.records[idx]

	if j, exists := s.index[r.ID]; exists && j != idx {
		totals, err := s.retotal([]record.Record{old, s.records[j]}, []record.Record{r})
		if err != nil {
			return err
		}

		s.totals = totals
		s.records[j] = r
		s.records = slices.Delete(s.records, idx, idx+1)
		delete(s.index, old.ID)
		s.reindexLocked(min(idx, j))

		return nil
	}

	totals, err := s.retotal([]record.Record{old}, []record.Record{r})
	if err != nil {
		return err
	}

	s.totals = totals
	s.records[idx] = r

	delete(s.index, old.ID)
	s.index[r.ID] = idx

	return nil
}

func (s *Store) overwriteLocked(idx int, r record.Record) error {
	totals, err := s.retotal([]record.Record{s.records[idx]}, []record.Record{r})
	if err != nil {
		return err
	}

	s.totals = totals
	s.records[idx] = r

	return nil
}

func (s *Store) insertLocked(r record.Record) error {
	totals, err := s.retotal(nil, []record.Record{r})
	if err != nil {
		return err
	}

	s.totals = totals
	s.index[r.ID] = len(s.records)
	s.records = append(s.records, r)

	return nil
}

func (s *Store) removeLocked(idx int) error {
	old := s.records[idx]

	totals, err := s.retotal([]record.Record{old}, nil)
	if err != nil {
		return err
	}

	s.totals = totals
	s.records = slices.Delete(s.records, idx, idx+1)
	delete(s.index, old.ID)
	s.reindexLocked(idx)

	return nil
}

func (s *Store) reindexLocked(from int) {
	if from == 0 {
		s.index = make(map[string]int, len(s.records))
	}

	for i := from; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
}

// retotal returns the totals after removing and adding records, leaving the
// store untouched when any sum would overflow.
func (s *Store) retotal(remove, add []record.Record) (map[totalsKey]int64, error) {
	next := make(map[totalsKey]int64, len(s.totals)+1)
	for k, v := range s.totals {
		next[k] = v
	}

	for _, r := range remove {
		if err := accumulate(next, r, -1); err != nil {
			return nil, err
		}
	}

	for _, r := range add {
		if err := accumulate(next, r, 1); err != nil {
			return nil, err
		}
	}

	if err := checkOptimistic(next); err != nil {
		return nil, err
	}

	return next, nil
}

func computeTotals(records []record.Record) (map[totalsKey]int64, error) {
	totals := make(map[totalsKey]int64)

	for _, r := range records {
		if err := accumulate(totals, r, 1); err != nil {
			return nil, err
		}
	}

	if err := checkOptimistic(totals); err != nil {
		return nil, err
	}

	return totals, nil
}

func accumulate(totals map[totalsKey]int64, r record.Record, sign int64) error {
	if r.Status == record.StatusFailed {
		return nil
	}

	key := totalsKey{r.Money.Currency, r.Status}

	delta := r.Signed()
	if sign < 0 {
		negated, err := money.Negate(delta)
		if err != nil {
			return err
		}

		delta = negated
	}

	sum, err := money.Add(money.New(totals[key], key.currency), delta)
	if err != nil {
		return err
	}

	totals[key] = sum.Amount

	return nil
}

// checkOptimistic rejects totals whose confirmed plus pending sum would
// overflow, which keeps Balance infallible.
func checkOptimistic(totals map[totalsKey]int64) error {
	for _, c := range money.Currencies() {
		confirmed := money.New(totals[totalsKey{c, record.StatusConfirmed}], c)
		pending := money.New(totals[totalsKey{c, record.StatusPending}], c)

		if _, err := money.Add(confirmed, pending); err != nil {
			return err
		}
	}

	return nil
}

func totalsKeys(maps ...map[totalsKey]int64) []totalsKey {
	seen := make(map[totalsKey]struct{})
	keys := make([]totalsKey, 0)

	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}

			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	return keys
}
