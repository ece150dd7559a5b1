package record

import (
	"cmp"
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/money"
)

// Type is the kind of money movement a record describes.
type Type string

const (
	TypeDeposit  Type = "DEPOSIT"
	TypeWithdraw Type = "WITHDRAW"
	TypePay      Type = "PAY"
	TypeTransfer Type = "TRANSFER"
)

// Valid reports whether t is one of the closed set of record types.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdraw, TypePay, TypeTransfer:
		return true
	default:
		return false
	}
}

// ParseType maps wire spellings onto a Type. The mobile client reported
// "Deposit" and "Withdrawal"; both spellings are accepted case-insensitively.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEPOSIT":
		return TypeDeposit, nil
	case "WITHDRAW", "WITHDRAWAL":
		return TypeWithdraw, nil
	case "PAY", "PAYMENT":
		return TypePay, nil
	case "TRANSFER":
		return TypeTransfer, nil
	default:
		return "", constant.NewValidationError("type", "unknown record type "+quoted(s))
	}
}

// Direction tells whether a record moves money into or out of the account.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Valid reports whether d is IN or OUT.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// ParseDirection accepts IN and OUT case-insensitively.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", constant.NewValidationError("direction", "unknown direction "+quoted(s))
	}

	return d, nil
}

// DefaultDirection is the only direction allowed for DEPOSIT, WITHDRAW and
// PAY, and the assumed direction of a TRANSFER reported without one.
func DefaultDirection(t Type) Direction {
	if t == TypeDeposit {
		return DirectionIn
	}

	return DirectionOut
}

// Status is the settlement state of a record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is one of the closed set of statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusFailed
}

// ParseStatus maps wire spellings onto a Status. An empty status means
// CONFIRMED, the only state the payments service reports by default.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "CONFIRMED", "COMPLETED", "SUCCESS":
		return StatusConfirmed, nil
	case "PENDING":
		return StatusPending, nil
	case "FAILED", "REJECTED":
		return StatusFailed, nil
	default:
		return "", constant.NewValidationError("status", "unknown status "+quoted(s))
	}
}

// Record is one money movement on the account.
type Record struct {
	ID            string      `json:"id"`
	Type          Type        `json:"type"`
	Direction     Direction   `json:"direction"`
	Money         money.Money `json:"money"`
	Status        Status      `json:"status"`
	Timestamp     int64       `json:"timestamp"`
	Counterparty  string      `json:"counterparty,omitempty"`
	Note          string      `json:"note,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
}

// Validate checks the closed enums, a non-empty id, a positive amount in a
// known currency and a direction consistent with the type.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return constant.NewValidationError("id", "record id is required")
	}

	if !r.Type.Valid() {
		return constant.NewValidationError("type", "unknown record type "+quoted(string(r.Type)))
	}

	if !r.Direction.Valid() {
		return constant.NewValidationError("direction", "unknown direction "+quoted(string(r.Direction)))
	}

	if r.Type != TypeTransfer && r.Direction != DefaultDirection(r.Type) {
		return constant.NewValidationError("direction", string(r.Type)+" must be "+string(DefaultDirection(r.Type)))
	}

	if !r.Status.Valid() {
		return constant.NewValidationError("status", "unknown status "+quoted(string(r.Status)))
	}

	if err := r.Money.Validate(); err != nil {
		return err
	}

	if !r.Money.IsPositive() {
		return constant.NewValidationError("amount", "amount must be greater than zero")
	}

	if r.Timestamp < 0 {
		return constant.NewValidationError("timestamp", "timestamp must not be negative")
	}

	return nil
}

// Signed returns the record's money with the sign of its direction:
// positive for IN, negative for OUT.
func (r Record) Signed() money.Money {
	if r.Direction == DirectionOut {
		return money.New(-r.Money.Amount, r.Money.Currency)
	}

	return r.Money
}

// IsProvisional reports whether the record still carries a client-generated id.
func (r Record) IsProvisional() bool {
	return IsProvisionalID(r.ID)
}

// IsProvisionalID reports whether id was generated by NewPending.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, constant.LocalIDPrefix)
}

// Fail returns a copy of r marked FAILED with reason.
func Fail(r Record, reason string) Record {
	r.Status = StatusFailed
	r.FailureReason = reason

	return r
}

// Confirmed returns a copy of r marked CONFIRMED.
func Confirmed(r Record) Record {
	r.Status = StatusConfirmed
	r.FailureReason = ""

	return r
}

// Compare orders records by timestamp, then id.
func Compare(a, b Record) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}

// Less is the canonical display order: oldest first, ties broken by id.
func Less(a, b Record) bool {
	return Compare(a, b) < 0
}

func quoted(s string) string {
	if len(s) > 32 {
		s = constant.TruncateUTF8(s, 32) + "..."
	}

	return `"` + s + `"`
}
