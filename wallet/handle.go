package wallet

import (
	"context"
	"sync"

	"github.com/jose254W/cards/wallet/record"
)

// OperationKind is one of the closed set of wallet operations.
type OperationKind string

const (
	KindDeposit  OperationKind = "deposit"
	KindWithdraw OperationKind = "withdraw"
	KindPay      OperationKind = "pay"
	KindTransfer OperationKind = "transfer"
)

func (k OperationKind) recordType() record.Type {
	switch k {
	case KindDeposit:
		return record.TypeDeposit
	case KindWithdraw:
		return record.TypeWithdraw
	case KindPay:
		return record.TypePay
	default:
		return record.TypeTransfer
	}
}

func (k OperationKind) outgoing() bool {
	return k != KindDeposit
}

// State is the lifecycle position of an operation.
type State string

const (
	StateValidating State = "VALIDATING"
	StateSubmitting State = "SUBMITTING"
	StateConfirmed  State = "CONFIRMED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether s is CONFIRMED or FAILED.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// Result is the outcome of a resolved operation. Record is the final ledger
// record; Err is set when the operation FAILED.
type Result struct {
	State  State
	Record record.Record
	Err    error
}

// Handle tracks one submitted operation. It is safe for concurrent use.
type Handle struct {
	kind OperationKind
	done chan struct{}

	mu     sync.Mutex
	id     string
	state  State
	result Result
}

func newHandle(kind OperationKind) *Handle {
	return &Handle{kind: kind, state: StateValidating, done: make(chan struct{})}
}

// ID returns the provisional record id of the operation.
func (h *Handle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.id
}

// Kind returns the operation kind.
func (h *Handle) Kind() OperationKind { return h.kind }

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// Done is closed once the operation is CONFIRMED or FAILED.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the operation resolves or ctx ends. An ended ctx only
// detaches the caller; the operation keeps running.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		res := h.snapshot()
		return res, res.Err
	case <-ctx.Done():
		return Result{State: h.State()}, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false until the
// operation resolves.
func (h *Handle) Result() (res Result, ok bool) {
	select {
	case <-h.done:
		return h.snapshot(), true
	default:
		return Result{State: h.State()}, false
	}
}

func (h *Handle) snapshot() Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.result
}

func (h *Handle) submitting(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.id = id
	h.state = StateSubmitting
}

// resolve records the terminal result. Only the first call has an effect.
func (h *Handle) resolve(res Result) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Terminal() {
		return false
	}

	h.state = res.State
	h.result = res
	close(h.done)

	return true
}
