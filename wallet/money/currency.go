package money

import (
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
)

// Currency identifies one of the wallet's balances.
type Currency string

const (
	// SmartPay is the platform's own stored-value currency.
	SmartPay Currency = "SMART_PAY"
	// LocalCurrency is the account holder's fiat balance.
	LocalCurrency Currency = "LOCAL_CURRENCY"
)

// Currencies lists every supported currency in display order.
func Currencies() []Currency {
	return []Currency{SmartPay, LocalCurrency}
}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	return c == SmartPay || c == LocalCurrency
}

func (c Currency) String() string {
	return string(c)
}

// ParseCurrency accepts SMART_PAY and LOCAL_CURRENCY, ignoring case and
// surrounding space.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", constant.NewValidationError("currency", "unknown currency "+quote(s))
	}

	return c, nil
}

func quote(s string) string {
	if len(s) > 32 {
		s = constant.TruncateUTF8(s, 32) + "..."
	}

	return `"` + s + `"`
}
