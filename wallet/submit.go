package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/ledger"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/record"
	"github.com/jose254W/cards/wallet/runtime"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxFailureReason = 256

type operation struct {
	kind         OperationKind
	amount       money.Money
	counterparty string
	note         string
	transfer     *TransferRequest
}

// SubmitDeposit credits amount to the account.
func (s *Session) SubmitDeposit(ctx context.Context, amount money.Money) (*Handle, error) {
	return s.submit(ctx, operation{kind: KindDeposit, amount: amount})
}

// SubmitWithdraw debits amount from the account.
func (s *Session) SubmitWithdraw(ctx context.Context, amount money.Money) (*Handle, error) {
	return s.submit(ctx, operation{kind: KindWithdraw, amount: amount})
}

// SubmitPay pays amount to merchantID.
func (s *Session) SubmitPay(ctx context.Context, merchantID string, amount money.Money) (*Handle, error) {
	return s.submit(ctx, operation{kind: KindPay, amount: amount, counterparty: strings.TrimSpace(merchantID)})
}

// SubmitTransfer sends req.Amount to req.Recipient.
func (s *Session) SubmitTransfer(ctx context.Context, req TransferRequest) (*Handle, error) {
	normalized, err := req.normalized()
	if err != nil {
		return nil, fmt.Errorf("submit transfer: %w", err)
	}

	return s.submit(ctx, operation{
		kind:         KindTransfer,
		amount:       normalized.Amount,
		counterparty: normalized.Recipient,
		note:         normalized.Note,
		transfer:     &normalized,
	})
}

func (s *Session) submit(ctx context.Context, op operation) (*Handle, error) {
	logger, tracer, headerID := s.tracking(ctx)
	ctx = ContextWithHeaderID(ctx, headerID)

	ctx, span := tracer.Start(ctx, "wallet.submit_"+string(op.kind))
	defer span.End()

	span.SetAttributes(
		attribute.String(constant.AttrWalletAccountID, s.cfg.AccountID),
		attribute.String(constant.AttrWalletOperationKind, string(op.kind)),
		attribute.String(constant.AttrWalletCurrency, string(op.amount.Currency)),
	)

	h := newHandle(op.kind)

	if err := s.validate(ctx, op); err != nil {
		libOpentelemetry.HandleSpanBusinessErrorEvent(&span, "wallet.submit.rejected", err)

		logger.Log(ctx, log.LevelInfo, "operation rejected",
			log.String("kind", string(op.kind)),
			log.Int64("amount", op.amount.Amount),
			log.String("currency", string(op.amount.Currency)),
			log.String("code", ErrorCode(err)),
			log.Err(err),
		)

		return nil, fmt.Errorf("submit %s: %w", op.kind, err)
	}

	pending, err := record.NewPending(op.kind.recordType(), op.amount, op.counterparty,
		record.WithClock(s.now),
		record.WithIDGenerator(s.ids),
		record.WithNote(op.note),
	)
	if err != nil {
		libOpentelemetry.HandleSpanBusinessErrorEvent(&span, "wallet.submit.rejected", err)

		return nil, fmt.Errorf("submit %s: %w", op.kind, err)
	}

	span.SetAttributes(attribute.String(constant.AttrWalletOperationID, pending.ID))

	if err := s.register(pending.ID, h); err != nil {
		return nil, fmt.Errorf("submit %s: %w", op.kind, err)
	}

	if err := s.store.Append(pending); err != nil {
		s.unregister(pending.ID)
		libOpentelemetry.HandleSpanError(&span, "Failed to append pending record", err)

		return nil, fmt.Errorf("submit %s: %w", op.kind, err)
	}

	h.submitting(pending.ID)

	s.recordMetric(ctx, logger, s.metrics.RecordOperationSubmitted(ctx, string(op.kind)))
	s.recordMetric(ctx, logger, s.metrics.SetPendingOperations(ctx, int64(s.InFlight())))

	logger.Log(ctx, log.LevelInfo, "operation submitted",
		log.String("kind", string(op.kind)),
		log.String("operation_id", pending.ID),
		log.Int64("amount", op.amount.Amount),
		log.String("currency", string(op.amount.Currency)),
	)

	background := context.WithoutCancel(ctx)

	runtime.SafeGoWithContextAndComponent(background, logger, component, "submit_"+string(op.kind), runtime.KeepRunning,
		func(ctx context.Context) {
			s.run(ctx, logger, tracer, h, op, pending)
		})

	return h, nil
}

// validate runs the VALIDATING checks. It never touches the ledger.
func (s *Session) validate(ctx context.Context, op operation) error {
	if err := op.amount.Validate(); err != nil {
		return err
	}

	if !op.amount.IsPositive() {
		return constant.NewValidationError("amount", "must be a positive number of minor units")
	}

	switch op.kind {
	case KindPay:
		if op.counterparty == "" {
			return constant.NewValidationError("merchantId", "must not be empty")
		}
	case KindTransfer:
		if op.transfer == nil {
			return constant.NewValidationError("transfer", "missing transfer details")
		}
	}

	if s.tokens != nil {
		if _, err := s.tokens.Token(ctx); err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return err
			}

			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
	}

	if op.kind.outgoing() {
		available := s.store.Balance(op.amount.Currency, true)
		if available.Amount < op.amount.Amount {
			return constant.NewDomainError(constant.CodeInsufficientFunds, "amount",
				fmt.Sprintf("requested %s, available %s", op.amount, available))
		}
	}

	return nil
}

type outcome struct {
	record record.Record
	err    error
}

// run drives one operation from SUBMITTING to a terminal state.
func (s *Session) run(ctx context.Context, logger log.Logger, tracer trace.Tracer, h *Handle, op operation, pending record.Record) {
	resolved := false

	defer func() {
		if resolved {
			return
		}

		err := fmt.Errorf("%w: operation aborted", ErrRemoteUnavailable)
		if r := recover(); r != nil {
			runtime.HandlePanicValue(ctx, logger, r, component, "run_"+string(op.kind))

			err = fmt.Errorf("%w: operation aborted by panic: %v", ErrRemoteUnavailable, r)
		}

		s.fail(ctx, logger, h, pending, err)
	}()

	ctx, span := tracer.Start(ctx, "wallet.remote_"+string(op.kind))
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrWalletOperationID, pending.ID))

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	req := SubmitRequest{
		OperationID: pending.ID,
		Money:       pending.Money,
		Timestamp:   pending.Timestamp,
		MerchantID:  op.counterparty,
		Transfer:    op.transfer,
		Note:        op.note,
	}

	results := make(chan outcome, 1)

	runtime.SafeGoWithContextAndComponent(callCtx, logger, component, "remote_"+string(op.kind), runtime.KeepRunning,
		func(ctx context.Context) {
			rec, err := s.call(ctx, op.kind, req)
			results <- outcome{record: rec, err: err}
		})

	var out outcome

	select {
	case out = <-results:
	case <-callCtx.Done():
		out.err = constant.NewDomainError(constant.CodeSubmitTimeout, "",
			fmt.Sprintf("no response from payments service within %s", s.cfg.SubmitTimeout))
	}

	if out.err != nil {
		libOpentelemetry.HandleSpanError(&span, "Remote submission failed", out.err)
		s.fail(ctx, logger, h, pending, out.err)
	} else {
		s.confirm(ctx, logger, h, pending, out.record)
	}

	resolved = true
}

func (s *Session) call(ctx context.Context, kind OperationKind, req SubmitRequest) (record.Record, error) {
	switch kind {
	case KindDeposit:
		return s.remote.Deposit(ctx, req)
	case KindWithdraw:
		return s.remote.Withdraw(ctx, req)
	case KindPay:
		return s.remote.Pay(ctx, req)
	default:
		return s.remote.Transfer(ctx, req)
	}
}

func (s *Session) confirm(ctx context.Context, logger log.Logger, h *Handle, pending record.Record, server record.Record) {
	switch server.Status {
	case record.StatusFailed:
		s.fail(ctx, logger, h, pending, constant.NewDomainError(constant.CodeRemoteRejected, "",
			nonEmpty(server.FailureReason, "operation failed on the server")))

		return
	case record.StatusPending:
		s.await(ctx, logger, h, pending, server)

		return
	}

	confirmed, err := s.store.Confirm(pending.ID, server)
	if err != nil {
		if settled, ok := s.settled(pending.ID); ok {
			s.finish(ctx, logger, h, pending, settled, nil)
			return
		}

		logger.Log(ctx, log.LevelError, "server record could not confirm operation",
			log.String("operation_id", pending.ID),
			log.String("server_id", server.ID),
			log.Err(err),
		)

		s.fail(ctx, logger, h, pending, fmt.Errorf("confirm %s: %w", pending.ID,
			constant.NewDomainError(constant.CodeRemoteInconsistent, "transaction", err.Error())))

		return
	}

	s.finish(ctx, logger, h, pending, confirmed, nil)
}

func (s *Session) fail(ctx context.Context, logger log.Logger, h *Handle, pending record.Record, cause error) {
	failed, err := s.store.MarkFailed(pending.ID, failureReason(cause))

	switch {
	case errors.Is(err, ledger.ErrSuperseded):
		logger.Log(ctx, log.LevelInfo, "operation settled by resync before the remote answered",
			log.String("operation_id", pending.ID),
			log.String("server_id", failed.ID),
		)

		s.finish(ctx, logger, h, pending, failed, nil)
	case err != nil:
		if settled, ok := s.settled(pending.ID); ok {
			s.finish(ctx, logger, h, pending, settled, nil)
			return
		}

		logger.Log(ctx, log.LevelError, "failed to mark operation FAILED",
			log.String("operation_id", pending.ID),
			log.Err(err),
		)

		s.finish(ctx, logger, h, pending, record.Fail(pending, failureReason(cause)), errors.Join(cause, err))
	default:
		s.finish(ctx, logger, h, pending, failed, cause)
	}
}

// await parks an operation the payments service accepted but has not settled.
// The placeholder stays PENDING and the handle resolves once a resync settles
// it.
func (s *Session) await(ctx context.Context, logger log.Logger, h *Handle, pending, server record.Record) {
	s.mu.Lock()
	s.awaiting[pending.ID] = awaitingOp{handle: h, pending: pending}
	s.mu.Unlock()

	inflight := s.unregister(pending.ID)
	s.recordMetric(ctx, logger, s.metrics.SetPendingOperations(ctx, int64(inflight)))

	logger.Log(ctx, log.LevelInfo, "operation accepted, awaiting settlement",
		log.String("kind", string(h.Kind())),
		log.String("operation_id", pending.ID),
		log.String("server_id", server.ID),
	)
}

// settleAwaiting resolves the parked operations whose placeholder a resync
// has settled.
func (s *Session) settleAwaiting(ctx context.Context, logger log.Logger) {
	s.mu.Lock()
	parked := make(map[string]awaitingOp, len(s.awaiting))
	for id, op := range s.awaiting {
		parked[id] = op
	}
	s.mu.Unlock()

	for id, op := range parked {
		final, ok := s.settled(id)
		if !ok {
			continue
		}

		s.mu.Lock()
		delete(s.awaiting, id)
		s.mu.Unlock()

		s.finish(ctx, logger, op.handle, op.pending, final, nil)
	}
}

// settled returns the non-PENDING record now standing for id, if any.
func (s *Session) settled(id string) (record.Record, bool) {
	current, ok := s.store.Lookup(id)
	if !ok || current.Status == record.StatusPending {
		return record.Record{}, false
	}

	return current, true
}

func (s *Session) finish(ctx context.Context, logger log.Logger, h *Handle, pending, final record.Record, cause error) {
	inflight := s.unregister(pending.ID)

	if h.State().Terminal() {
		return
	}

	state := StateConfirmed
	if final.Status == record.StatusFailed {
		state = StateFailed

		if cause == nil {
			cause = constant.NewDomainError(constant.CodeRemoteRejected, "", nonEmpty(final.FailureReason, "operation failed on the server"))
		}
	} else {
		cause = nil
	}

	s.recordMetric(ctx, logger, s.metrics.RecordOperationResolved(ctx, string(h.Kind()), strings.ToLower(string(state))))
	s.recordMetric(ctx, logger, s.metrics.SetPendingOperations(ctx, int64(inflight)))

	fields := []log.Field{
		log.String("kind", string(h.Kind())),
		log.String("operation_id", pending.ID),
		log.String("record_id", final.ID),
		log.String("state", string(state)),
	}

	if cause != nil {
		logger.Log(ctx, log.LevelWarn, "operation failed", append(fields, log.String("code", ErrorCode(cause)), log.Err(cause))...)
	} else {
		logger.Log(ctx, log.LevelInfo, "operation confirmed", fields...)
	}

	h.resolve(Result{State: state, Record: final, Err: cause})
}

func failureReason(err error) string {
	if err == nil {
		return ""
	}

	reason := err.Error()
	if code := ErrorCode(err); code != "" && !strings.HasPrefix(reason, code) {
		reason = code + ": " + reason
	}

	return constant.TruncateUTF8(reason, maxFailureReason)
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}

	return s
}
