package reconcile

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/record"
)

const (
	// DefaultTolerance is the timestamp window for matching a placeholder.
	DefaultTolerance = 2 * time.Minute
	// DefaultMaxMisses is the number of resyncs a placeholder may go unmatched
	// before it is reported stale.
	DefaultMaxMisses = 5
)

// Options tunes a merge. Zero values select the defaults.
type Options struct {
	// Tolerance bounds |server.timestamp - pending.timestamp| for a match.
	Tolerance time.Duration
	// MaxMisses is the miss count at which a placeholder is reported stale.
	MaxMisses int
	// StaleAfter also reports placeholders older than this, measured from
	// FetchedAt. Zero disables the age rule.
	StaleAfter time.Duration
	// FetchedAt is when the batch was fetched. A server timestamp between a
	// placeholder's timestamp and FetchedAt matches even outside Tolerance.
	// Zero disables that rule and the age rule.
	FetchedAt time.Time
	// Misses carries per-placeholder miss counters from the previous merge.
	Misses map[string]int
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}

	if o.MaxMisses <= 0 {
		o.MaxMisses = DefaultMaxMisses
	}

	return o
}

// Report summarizes one merge.
type Report struct {
	// Matched maps provisional ids to the server id that superseded them.
	Matched   map[string]string
	Inserted  int
	Updated   int
	Unchanged int
	// Skipped counts server records still PENDING on the server side.
	Skipped int
	// Rejected counts server records that failed validation.
	Rejected int
	// Stale lists placeholders that reached MaxMisses or StaleAfter.
	Stale []string
	// Pending is the number of placeholders left after the merge.
	Pending int
}

// Result is the merged record set, canonically ordered, plus bookkeeping.
type Result struct {
	Records []record.Record
	Misses  map[string]int
	Report  Report
}

type pendingEntry struct {
	rec   record.Record
	order int
}

// Merge reconciles current with batch. current must not contain duplicate ids.
func Merge(current, batch []record.Record, opts Options) (Result, error) {
	opts = opts.withDefaults()

	report := Report{Matched: make(map[string]string)}

	settled := make([]record.Record, 0, len(current)+len(batch))
	settledAt := make(map[string]int, len(current)+len(batch))
	pending := make([]pendingEntry, 0)

	for i, r := range current {
		if _, dup := settledAt[r.ID]; dup {
			return Result{}, fmt.Errorf("current history: %w: %s", constant.ErrDuplicateID, r.ID)
		}

		if r.Status == record.StatusPending {
			pending = append(pending, pendingEntry{rec: r, order: i})
			settledAt[r.ID] = -1

			continue
		}

		settledAt[r.ID] = len(settled)
		settled = append(settled, r)
	}

	slices.SortStableFunc(pending, func(a, b pendingEntry) int {
		if c := cmp.Compare(a.rec.Timestamp, b.rec.Timestamp); c != 0 {
			return c
		}

		return cmp.Compare(a.order, b.order)
	})

	matched := make(map[string]bool, len(pending))
	eligible := make([]int, 0, len(batch))

	for _, raw := range batch {
		s, err := normalizeServer(raw)
		if err != nil {
			report.Rejected++
			continue
		}

		if s.Status == record.StatusPending {
			report.Skipped++
			continue
		}

		idx, known := settledAt[s.ID]

		switch {
		case known && idx < 0:
			// The server adopted the placeholder's id.
			if matched[s.ID] {
				settled[indexOf(settled, s.ID)] = s
				report.Updated++

				continue
			}

			matched[s.ID] = true
			report.Matched[s.ID] = s.ID
			settled = append(settled, s)
			report.Inserted++
		case known:
			if settled[idx] == s {
				report.Unchanged++
				continue
			}

			settled[idx] = s
			report.Updated++
		default:
			settledAt[s.ID] = len(settled)

			// Only confirmed server records stand in for a placeholder.
			if s.Status == record.StatusConfirmed {
				eligible = append(eligible, len(settled))
			}

			settled = append(settled, s)
			report.Inserted++
		}
	}

	used := make([]bool, len(eligible))

	for _, p := range pending {
		if matched[p.rec.ID] {
			continue
		}

		for j, idx := range eligible {
			if used[j] || !matches(p.rec, settled[idx], opts) {
				continue
			}

			used[j] = true
			matched[p.rec.ID] = true
			report.Matched[p.rec.ID] = settled[idx].ID

			break
		}
	}

	misses := make(map[string]int)
	records := settled

	for _, p := range pending {
		if matched[p.rec.ID] {
			continue
		}

		n := opts.Misses[p.rec.ID] + 1
		misses[p.rec.ID] = n

		if n >= opts.MaxMisses || tooOld(p.rec, opts) {
			report.Stale = append(report.Stale, p.rec.ID)
		}

		records = append(records, p.rec)
		report.Pending++
	}

	slices.SortStableFunc(records, record.Compare)

	return Result{Records: records, Misses: misses, Report: report}, nil
}

// normalizeServer fills the defaults the payments service leaves implicit and
// validates the result.
func normalizeServer(r record.Record) (record.Record, error) {
	if r.Status == "" {
		r.Status = record.StatusConfirmed
	}

	if r.Direction == "" {
		r.Direction = record.DefaultDirection(r.Type)
	}

	if r.Status != record.StatusFailed {
		r.FailureReason = ""
	}

	if err := r.Validate(); err != nil {
		return record.Record{}, err
	}

	return r, nil
}

func matches(p, s record.Record, opts Options) bool {
	if p.Type != s.Type || p.Direction != s.Direction || p.Money != s.Money {
		return false
	}

	delta := s.Timestamp - p.Timestamp
	if delta < 0 {
		delta = -delta
	}

	if delta <= opts.Tolerance.Milliseconds() {
		return true
	}

	if opts.FetchedAt.IsZero() {
		return false
	}

	return s.Timestamp >= p.Timestamp && s.Timestamp <= opts.FetchedAt.UnixMilli()
}

func tooOld(p record.Record, opts Options) bool {
	if opts.StaleAfter <= 0 || opts.FetchedAt.IsZero() {
		return false
	}

	return opts.FetchedAt.UnixMilli()-p.Timestamp > opts.StaleAfter.Milliseconds()
}

func indexOf(records []record.Record, id string) int {
	return slices.IndexFunc(records, func(r record.Record) bool { return r.ID == id })
}
