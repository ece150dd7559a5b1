//go:build unit

package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/jose254W/cards/wallet/money"
	"github.com/jose254W/cards/wallet/record"
)

type submitFunc func(ctx context.Context, kind OperationKind, req SubmitRequest) (record.Record, error)

// fakeRemote answers submissions with a CONFIRMED server record unless
// onSubmit overrides it.
type fakeRemote struct {
	mu         sync.Mutex
	seq        int
	requests   []SubmitRequest
	history    []record.Record
	historyErr error
	balance    map[money.Currency]money.Money
	balanceErr error
	onSubmit   submitFunc
}

func (f *fakeRemote) FetchHistory(context.Context) ([]record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.historyErr != nil {
		return nil, f.historyErr
	}

	return append([]record.Record(nil), f.history...), nil
}

func (f *fakeRemote) FetchBalance(context.Context) (map[money.Currency]money.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.balanceErr != nil {
		return nil, f.balanceErr
	}

	return f.balance, nil
}

func (f *fakeRemote) Deposit(ctx context.Context, req SubmitRequest) (record.Record, error) {
	return f.submit(ctx, KindDeposit, req)
}

func (f *fakeRemote) Withdraw(ctx context.Context, req SubmitRequest) (record.Record, error) {
	return f.submit(ctx, KindWithdraw, req)
}

func (f *fakeRemote) Pay(ctx context.Context, req SubmitRequest) (record.Record, error) {
	return f.submit(ctx, KindPay, req)
}

func (f *fakeRemote) Transfer(ctx context.Context, req SubmitRequest) (record.Record, error) {
	return f.submit(ctx, KindTransfer, req)
}

func (f *fakeRemote) submit(ctx context.Context, kind OperationKind, req SubmitRequest) (record.Record, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.seq++
	seq := f.seq
	hook := f.onSubmit
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, kind, req)
	}

	return serverRecordFor(fmt.Sprintf("srv-%d", seq), kind, req), nil
}

func (f *fakeRemote) submitted() []SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]SubmitRequest(nil), f.requests...)
}

func (f *fakeRemote) setHistory(records ...record.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.history = records
}

func serverRecordFor(id string, kind OperationKind, req SubmitRequest) record.Record {
	typ := kind.recordType()

	counterparty := req.MerchantID
	if req.Transfer != nil {
		counterparty = req.Transfer.Recipient
	}

	return record.Record{
		ID:           id,
		Type:         typ,
		Direction:    record.DefaultDirection(typ),
		Money:        req.Money,
		Status:       record.StatusConfirmed,
		Timestamp:    req.Timestamp,
		Counterparty: counterparty,
	}
}
