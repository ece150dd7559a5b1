package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/money"
	"github.com/jose254W/cards/wallet/record"
	"github.com/shopspring/decimal"
)

// TransactionDTO is a transaction as the payments service reports it. Older
// deployments use _id, transactionType and date instead of id, type and
// timestamp.
type TransactionDTO struct {
	ID              string          `json:"id,omitempty"`
	LegacyID        string          `json:"_id,omitempty"`
	Type            string          `json:"type,omitempty"`
	TransactionType string          `json:"transactionType,omitempty"`
	Direction       string          `json:"direction,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status,omitempty"`
	Timestamp       json.RawMessage `json:"timestamp,omitempty"`
	Date            json.RawMessage `json:"date,omitempty"`
	Counterparty    string          `json:"counterparty,omitempty"`
	MerchantID      string          `json:"merchantId,omitempty"`
	Recipient       string          `json:"recipient,omitempty"`
	Note            string          `json:"note,omitempty"`
	FailureReason   string          `json:"failureReason,omitempty"`
}

// Record converts d into a ledger record. Amounts are read as magnitudes; a
// missing direction is derived from the type.
func (d TransactionDTO) Record() (record.Record, error) {
	id := firstNonEmpty(d.ID, d.LegacyID)
	if id == "" {
		return record.Record{}, constant.NewValidationError("id", "transaction without id")
	}

	typ, err := record.ParseType(firstNonEmpty(d.Type, d.TransactionType))
	if err != nil {
		return record.Record{}, fmt.Errorf("transaction %s: %w", id, err)
	}

	currency, err := money.ParseCurrency(d.Currency)
	if err != nil {
		return record.Record{}, fmt.Errorf("transaction %s: %w", id, err)
	}

	amount, err := money.FromDecimal(d.Amount.Abs(), currency)
	if err != nil {
		return record.Record{}, fmt.Errorf("transaction %s: %w", id, err)
	}

	status, err := record.ParseStatus(d.Status)
	if err != nil {
		return record.Record{}, fmt.Errorf("transaction %s: %w", id, err)
	}

	direction := record.DefaultDirection(typ)
	if strings.TrimSpace(d.Direction) != "" {
		if direction, err = record.ParseDirection(d.Direction); err != nil {
			return record.Record{}, fmt.Errorf("transaction %s: %w", id, err)
		}
	}

	ts, err := parseTime(d.Timestamp, d.Date)
	if err != nil {
		return record.Record{}, fmt.Errorf("transaction %s: %w", id, err)
	}

	return record.Record{
		ID:            id,
		Type:          typ,
		Direction:     direction,
		Money:         amount,
		Status:        status,
		Timestamp:     ts,
		Counterparty:  firstNonEmpty(d.Counterparty, d.MerchantID, d.Recipient),
		Note:          strings.TrimSpace(d.Note),
		FailureReason: strings.TrimSpace(d.FailureReason),
	}, nil
}

// FromRecord renders r in the wire shape. Outgoing amounts stay positive; the
// direction field carries the sign.
func FromRecord(r record.Record) TransactionDTO {
	ts, _ := json.Marshal(r.Timestamp)

	return TransactionDTO{
		ID:            r.ID,
		Type:          string(r.Type),
		Direction:     string(r.Direction),
		Amount:        r.Money.Major(),
		Currency:      string(r.Money.Currency),
		Status:        string(r.Status),
		Timestamp:     ts,
		Counterparty:  r.Counterparty,
		Note:          r.Note,
		FailureReason: r.FailureReason,
	}
}

var (
	minMillis = decimal.NewFromInt(math.MinInt64)
	maxMillis = decimal.NewFromInt(math.MaxInt64)
)

// parseTime accepts Unix milliseconds as a number or digit string, or an
// RFC 3339 string, from either field.
func parseTime(fields ...json.RawMessage) (int64, error) {
	for _, raw := range fields {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}

		if raw[0] != '"' {
			ms, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				d, derr := decimal.NewFromString(string(raw))
				if derr != nil {
					return 0, constant.NewValidationError("timestamp", "not a number of milliseconds")
				}

				if d.LessThan(minMillis) || d.GreaterThan(maxMillis) {
					return 0, constant.NewValidationError("timestamp", "milliseconds out of range")
				}

				ms = d.IntPart()
			}

			return ms, nil
		}

		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, constant.NewValidationError("timestamp", "malformed string")
		}

		s = strings.TrimSpace(s)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ms, nil
		}

		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return 0, constant.NewValidationError("timestamp", "expected unix milliseconds or RFC 3339")
		}

		return t.UnixMilli(), nil
	}

	return 0, constant.NewValidationError("timestamp", "missing timestamp")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

type historyResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
}

// BalanceDTO is the body of GET /api/wallet/balance.
type BalanceDTO struct {
	SmartPayBalance      decimal.Decimal `json:"smartPayBalance"`
	LocalCurrencyBalance decimal.Decimal `json:"localCurrencyBalance"`
}

// Balances converts b into minor units per currency.
func (b BalanceDTO) Balances() (map[money.Currency]money.Money, error) {
	smartPay, err := money.FromDecimal(b.SmartPayBalance, money.SmartPay)
	if err != nil {
		return nil, fmt.Errorf("smartPayBalance: %w", err)
	}

	local, err := money.FromDecimal(b.LocalCurrencyBalance, money.LocalCurrency)
	if err != nil {
		return nil, fmt.Errorf("localCurrencyBalance: %w", err)
	}

	return map[money.Currency]money.Money{money.SmartPay: smartPay, money.LocalCurrency: local}, nil
}

// SubmitBody is the body of every POST /api/wallet/{operation}. Amount is a
// JSON number in major units.
type SubmitBody struct {
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Timestamp     int64       `json:"timestamp"`
	MerchantID    string      `json:"merchantId,omitempty"`
	RecipientType string      `json:"recipientType,omitempty"`
	Recipient     string      `json:"recipient,omitempty"`
	AccountNumber string      `json:"accountNumber,omitempty"`
	Note          string      `json:"note,omitempty"`
}

// SubmitResponse is the body of a successful submission.
type SubmitResponse struct {
	Msg         string          `json:"msg"`
	Transaction *TransactionDTO `json:"transaction"`
}

// ErrorBody is the body of an error response.
type ErrorBody struct {
	Msg     string `json:"msg"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
}

// RegisterRequest is the body of POST /api/auth/register/user.
type RegisterRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	IDNumber    string `json:"idNumber"`
}

// RegisterResponse is the body of a successful registration. Token is empty
// when the service requires a separate login.
type RegisterResponse struct {
	Token string `json:"token,omitempty"`
}
