package money

import (
	"fmt"
	"math"
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/shopspring/decimal"
)

// minorExponent is the number of fractional digits in a major-unit amount.
const minorExponent = 2

var (
	// ErrCurrencyMismatch is returned by arithmetic across currencies.
	ErrCurrencyMismatch = constant.NewDomainError(constant.CodeCurrencyMismatch, "currency", "currency mismatch")
	// ErrOverflow is returned when a result does not fit in int64 minor units.
	ErrOverflow = constant.NewDomainError(constant.CodeAmountOverflow, "amount", "amount overflows int64 minor units")
	// ErrPrecision is returned for major-unit amounts with more than two fractional digits.
	ErrPrecision = constant.NewValidationError("amount", "amount has more than two fractional digits")

	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount of minor units in one currency. The zero value has no
// currency and is not valid for arithmetic.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// New returns amount minor units of currency.
func New(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns an empty amount of currency.
func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

// IsPositive reports whether m is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsZero reports whether m holds no minor units.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsNegative reports whether m is strictly below zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Validate checks that m carries a supported currency.
func (m Money) Validate() error {
	if !m.Currency.Valid() {
		return constant.NewValidationError("currency", "unknown currency "+quote(string(m.Currency)))
	}

	return nil
}

// Major returns m in decimal major units.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Amount, -minorExponent)
}

// String renders m as "12.50 SMART_PAY".
func (m Money) String() string {
	return m.Major().StringFixed(minorExponent) + " " + string(m.Currency)
}

// Add returns a + b.
func Add(a, b Money) (Money, error) {
	if a.Currency != b.Currency {
		return Money{}, mismatch(a, b)
	}

	if (b.Amount > 0 && a.Amount > math.MaxInt64-b.Amount) ||
		(b.Amount < 0 && a.Amount < math.MinInt64-b.Amount) {
		return Money{}, fmt.Errorf("add %d and %d: %w", a.Amount, b.Amount, ErrOverflow)
	}

	return Money{Amount: a.Amount + b.Amount, Currency: a.Currency}, nil
}

// Subtract returns a - b.
func Subtract(a, b Money) (Money, error) {
	if a.Currency != b.Currency {
		return Money{}, mismatch(a, b)
	}

	if (b.Amount < 0 && a.Amount > math.MaxInt64+b.Amount) ||
		(b.Amount > 0 && a.Amount < math.MinInt64+b.Amount) {
		return Money{}, fmt.Errorf("subtract %d from %d: %w", b.Amount, a.Amount, ErrOverflow)
	}

	return Money{Amount: a.Amount - b.Amount, Currency: a.Currency}, nil
}

// Negate returns -a. The most negative int64 has no negation and overflows.
func Negate(a Money) (Money, error) {
	if a.Amount == math.MinInt64 {
		return Money{}, fmt.Errorf("negate %d: %w", a.Amount, ErrOverflow)
	}

	return Money{Amount: -a.Amount, Currency: a.Currency}, nil
}

// Compare returns -1, 0 or +1 as a is less than, equal to or greater than b.
func Compare(a, b Money) (int, error) {
	if a.Currency != b.Currency {
		return 0, mismatch(a, b)
	}

	switch {
	case a.Amount < b.Amount:
		return -1, nil
	case a.Amount > b.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// FromMajor parses a decimal major-unit amount such as "12.50". Amounts with
// more than two significant fractional digits, NaN, infinities and values
// outside the int64 minor-unit range are rejected.
func FromMajor(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, constant.NewValidationError("amount", "invalid decimal amount "+quote(s))
	}

	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into minor units of currency.
func FromDecimal(d decimal.Decimal, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, constant.NewValidationError("currency", "unknown currency "+quote(string(currency)))
	}

	minor := d.Shift(minorExponent)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("%s: %w", d.String(), ErrPrecision)
	}

	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Money{}, fmt.Errorf("%s: %w", d.String(), ErrOverflow)
	}

	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

func mismatch(a, b Money) error {
	return fmt.Errorf("%s vs %s: %w", a.Currency, b.Currency, ErrCurrencyMismatch)
}
