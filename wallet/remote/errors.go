package remote

import (
	"errors"
	"fmt"
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
)

// Codes the payments service uses for insufficient funds.
var insufficientFundsCodes = []string{constant.CodeInsufficientFunds, "INSUFFICIENT_FUNDS"}

// RejectedError is a 4xx business rejection from the payments service.
// It matches wallet.ErrRemoteRejected, and wallet.ErrInsufficientFunds when
// the service reports the balance as too low.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments service rejected request: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}

	return fmt.Sprintf("payments service rejected request: %s (status %d)", e.Message, e.Status)
}

// Is reports whether target classifies e.
func (e *RejectedError) Is(target error) bool {
	switch target {
	case constant.ErrRemoteRejected:
		return true
	case constant.ErrInsufficientFunds:
		return e.InsufficientFunds()
	default:
		return false
	}
}

// InsufficientFunds reports whether the rejection is for a low balance.
func (e *RejectedError) InsufficientFunds() bool {
	for _, code := range insufficientFundsCodes {
		if strings.EqualFold(e.Code, code) {
			return true
		}
	}

	return strings.Contains(strings.ToLower(e.Message), "insufficient")
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", constant.ErrRemoteUnavailable, fmt.Sprintf(format, args...))
}

func unauthenticated(format string, args ...any) error {
	return fmt.Errorf("%w: %s", constant.ErrUnauthenticated, fmt.Sprintf(format, args...))
}

// outcome labels the latency metric.
func outcome(err error) string {
	var rejected *RejectedError

	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, constant.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "unavailable"
	}
}
