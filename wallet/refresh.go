package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/errgroup"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/reconcile"
	"github.com/jose254W/cards/wallet/record"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BalanceMismatch is a currency whose derived confirmed balance disagrees
// with the balance the payments service reports.
type BalanceMismatch struct {
	Currency money.Currency
	Local    money.Money
	Server   money.Money
}

// RefreshReport summarizes one Refresh.
type RefreshReport struct {
	FetchedAt time.Time
	Reconcile reconcile.Report
	// ServerBalance is nil when the balance fetch failed; BalanceErr says why.
	ServerBalance  map[money.Currency]money.Money
	BalanceErr     error
	BalanceChecked bool
	Mismatches     []BalanceMismatch
	// FailedStale lists placeholders marked FAILED because the server never
	// reported them.
	FailedStale []string
	// SnapshotErr is set when the ledger snapshot could not be saved. The
	// refresh itself still succeeded.
	SnapshotErr error
}

// Refresh fetches the server history and balance concurrently, merges the
// history into the ledger and cross-checks confirmed balances. A failed
// balance fetch skips the cross-check; a failed history fetch fails the
// refresh and leaves the ledger untouched.
func (s *Session) Refresh(ctx context.Context) (RefreshReport, error) {
	logger, tracer, headerID := s.tracking(ctx)
	ctx = ContextWithHeaderID(ctx, headerID)

	ctx, span := tracer.Start(ctx, "wallet.refresh")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrWalletAccountID, s.cfg.AccountID))

	var (
		history    []record.Record
		balances   map[money.Currency]money.Money
		balanceErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLogger(logger)
	g.SetComponent(component)

	g.Go(func() error {
		batch, err := s.remote.FetchHistory(gctx)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}

		history = batch

		return nil
	})

	g.Go(func() error {
		b, err := s.remote.FetchBalance(gctx)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return fmt.Errorf("fetch balance: %w", err)
			}

			balanceErr = err

			return nil
		}

		balances = b

		return nil
	})

	if err := g.Wait(); err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to refresh wallet", err)
		logger.Log(ctx, log.LevelWarn, "wallet refresh failed", log.Err(err))

		return RefreshReport{}, fmt.Errorf("refresh: %w", err)
	}

	fetchedAt := s.now()

	report, err := s.resync(ctx, logger, tracer, history, fetchedAt)
	if err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to merge server history", err)

		return RefreshReport{}, fmt.Errorf("refresh: %w", err)
	}

	out := RefreshReport{FetchedAt: fetchedAt, Reconcile: report}

	if balanceErr != nil {
		out.BalanceErr = balanceErr

		logger.Log(ctx, log.LevelWarn, "balance cross-check skipped", log.Err(balanceErr))
	} else {
		out.ServerBalance = balances
		out.BalanceChecked = true
		out.Mismatches = s.crossCheck(ctx, logger, balances)
	}

	out.FailedStale = s.failStale(ctx, logger, report.Stale)

	span.SetAttributes(
		attribute.Int("wallet.refresh.matched", len(report.Matched)),
		attribute.Int("wallet.refresh.mismatches", len(out.Mismatches)),
	)

	if len(out.Mismatches) > 0 {
		libOpentelemetry.HandleSpanEvent(&span, "wallet.balance.mismatch",
			attribute.Int("wallet.refresh.mismatches", len(out.Mismatches)))
	}

	if err := s.persist(ctx); err != nil {
		out.SnapshotErr = err
		libOpentelemetry.HandleSpanError(&span, "Failed to save ledger snapshot", err)
	}

	return out, nil
}

// Resync merges a server history batch into the ledger.
func (s *Session) Resync(batch []record.Record) (reconcile.Report, error) {
	ctx := context.Background()

	return s.resync(ctx, s.logger, s.tracer, batch, s.now())
}

func (s *Session) resync(ctx context.Context, logger log.Logger, tracer trace.Tracer, batch []record.Record, fetchedAt time.Time) (reconcile.Report, error) {
	ctx, span := tracer.Start(ctx, "wallet.resync")
	defer span.End()

	span.SetAttributes(attribute.Int("wallet.resync.batch", len(batch)))

	report, err := s.store.ReplaceHistory(batch, s.cfg.reconcileOptions(fetchedAt))
	if err != nil {
		libOpentelemetry.HandleSpanError(&span, "Failed to merge server history", err)

		return reconcile.Report{}, fmt.Errorf("resync: %w", err)
	}

	s.recordMetric(ctx, logger, s.metrics.RecordReconcileMatched(ctx, len(report.Matched)))
	s.settleAwaiting(ctx, logger)

	if report.Rejected > 0 {
		logger.Log(ctx, log.LevelWarn, "server history contained invalid records", log.Int("rejected", report.Rejected))
	}

	logger.Log(ctx, log.LevelDebug, "server history merged",
		log.Int("batch", len(batch)),
		log.Int("matched", len(report.Matched)),
		log.Int("inserted", report.Inserted),
		log.Int("updated", report.Updated),
		log.Int("pending", report.Pending),
		log.Int("stale", len(report.Stale)),
	)

	return report, nil
}

func (s *Session) crossCheck(ctx context.Context, logger log.Logger, server map[money.Currency]money.Money) []BalanceMismatch {
	var mismatches []BalanceMismatch

	for _, currency := range money.Currencies() {
		remote, ok := server[currency]
		if !ok {
			continue
		}

		local := s.store.Balance(currency, false)
		if local.Amount == remote.Amount {
			continue
		}

		mismatches = append(mismatches, BalanceMismatch{Currency: currency, Local: local, Server: remote})

		logger.Log(ctx, log.LevelWarn, "derived balance disagrees with server balance",
			log.String("currency", string(currency)),
			log.Int64("local", local.Amount),
			log.Int64("server", remote.Amount),
		)
	}

	return mismatches
}

// failStale marks FAILED the stale placeholders that no in-flight operation
// still owns.
func (s *Session) failStale(ctx context.Context, logger log.Logger, stale []string) []string {
	var failed []string

	for _, id := range stale {
		if s.isInFlight(id) {
			continue
		}

		if _, err := s.store.MarkFailed(id, "not reported by the payments service"); err != nil {
			logger.Log(ctx, log.LevelWarn, "failed to expire stale placeholder", log.String("operation_id", id), log.Err(err))
			continue
		}

		failed = append(failed, id)
	}

	if len(failed) > 0 {
		logger.Log(ctx, log.LevelWarn, "stale placeholders marked FAILED", log.Int("count", len(failed)))
		s.settleAwaiting(ctx, logger)
	}

	return failed
}
