package wallet

import (
	"context"
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/money"
	"github.com/jose254W/cards/wallet/record"
)

// Remote is the payments service as seen by a Session. Submissions return the
// server's record of the operation.
type Remote interface {
	FetchHistory(ctx context.Context) ([]record.Record, error)
	FetchBalance(ctx context.Context) (map[money.Currency]money.Money, error)
	Deposit(ctx context.Context, req SubmitRequest) (record.Record, error)
	Withdraw(ctx context.Context, req SubmitRequest) (record.Record, error)
	Pay(ctx context.Context, req SubmitRequest) (record.Record, error)
	Transfer(ctx context.Context, req SubmitRequest) (record.Record, error)
}

// SubmitRequest is one operation handed to the Remote.
type SubmitRequest struct {
	// OperationID is the provisional record id. Remotes send it as the
	// idempotency key.
	OperationID string
	Money       money.Money
	// Timestamp is the local submission time in Unix milliseconds.
	Timestamp  int64
	MerchantID string
	Transfer   *TransferRequest
	Note       string
}

// RecipientType names where a transfer is sent.
type RecipientType string

const (
	RecipientSmartPay    RecipientType = "smartpay"
	RecipientMobileMoney RecipientType = "mobile_money"
	RecipientBank        RecipientType = "bank"
)

// Valid reports whether t is a known recipient type.
func (t RecipientType) Valid() bool {
	switch t {
	case RecipientSmartPay, RecipientMobileMoney, RecipientBank:
		return true
	default:
		return false
	}
}

// TransferRequest describes an outgoing transfer.
type TransferRequest struct {
	RecipientType RecipientType `json:"recipientType"`
	Recipient     string        `json:"recipient"`
	// AccountNumber is required for bank transfers.
	AccountNumber string      `json:"accountNumber,omitempty"`
	Amount        money.Money `json:"amount"`
	Note          string      `json:"note,omitempty"`
}

func (t TransferRequest) normalized() (TransferRequest, error) {
	t.RecipientType = RecipientType(strings.ToLower(strings.TrimSpace(string(t.RecipientType))))
	t.Recipient = strings.TrimSpace(t.Recipient)
	t.AccountNumber = strings.TrimSpace(t.AccountNumber)
	t.Note = strings.TrimSpace(t.Note)

	if !t.RecipientType.Valid() {
		return t, constant.NewValidationError("recipientType", "must be one of smartpay, mobile_money, bank")
	}

	if t.Recipient == "" {
		return t, constant.NewValidationError("recipient", "must not be empty")
	}

	if t.RecipientType == RecipientBank && t.AccountNumber == "" {
		return t, constant.NewValidationError("accountNumber", "required for bank transfers")
	}

	return t, nil
}
