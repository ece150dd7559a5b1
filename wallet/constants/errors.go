package constant

import (
	"errors"
	"fmt"
)

// Error codes carried by wallet domain errors. The remote service reports its
// own codes in the `code` field of error bodies; these constants classify them.
const (
	CodeValidation         = "WLT-0001"
	CodeInsufficientFunds  = "WLT-0002"
	CodeDuplicateID        = "WLT-0003"
	CodeNotFound           = "WLT-0004"
	CodeUnauthenticated    = "WLT-0005"
	CodeRemoteUnavailable  = "WLT-0006"
	CodeRemoteRejected     = "WLT-0007"
	CodeCurrencyMismatch   = "WLT-0008"
	CodeAmountOverflow     = "WLT-0009"
	CodeInvalidMerchantQR  = "WLT-0010"
	CodeSubmitTimeout      = "WLT-0011"
	CodeRemoteInconsistent = "WLT-0012"
)

var (
	// ErrValidation covers bad amounts, unknown currencies and malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientFunds signals an outgoing amount above the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateID signals a second record with an id already stored.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrNotFound signals a record id absent from the ledger.
	ErrNotFound = errors.New("record not found")
	// ErrUnauthenticated signals a missing, expired or rejected credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRemoteUnavailable covers transport errors, 5xx responses, timeouts and an open breaker.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrRemoteRejected signals a 4xx business rejection from the payments service.
	ErrRemoteRejected = errors.New("remote rejected operation")
)

var sentinelByCode = map[string]error{
	CodeValidation:         ErrValidation,
	CodeCurrencyMismatch:   ErrValidation,
	CodeAmountOverflow:     ErrValidation,
	CodeInvalidMerchantQR:  ErrValidation,
	CodeInsufficientFunds:  ErrInsufficientFunds,
	CodeDuplicateID:        ErrDuplicateID,
	CodeNotFound:           ErrNotFound,
	CodeUnauthenticated:    ErrUnauthenticated,
	CodeRemoteUnavailable:  ErrRemoteUnavailable,
	CodeSubmitTimeout:      ErrRemoteUnavailable,
	CodeRemoteInconsistent: ErrRemoteUnavailable,
	CodeRemoteRejected:     ErrRemoteRejected,
}

// DomainError is a structured wallet error. It unwraps to the sentinel that
// classifies its Code, so errors.Is(err, ErrValidation) holds for every
// validation-class code.
type DomainError struct {
	Code    string
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// Unwrap returns the sentinel for e.Code, or nil for unknown codes.
func (e DomainError) Unwrap() error {
	return sentinelByCode[e.Code]
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

// NewValidationError creates a validation-class domain error for field.
func NewValidationError(field, message string) error {
	return DomainError{Code: CodeValidation, Field: field, Message: message}
}

// CodeOf returns the wallet code classifying err, or "" when err carries none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	for _, code := range []string{
		CodeValidation,
		CodeInsufficientFunds,
		CodeDuplicateID,
		CodeNotFound,
		CodeUnauthenticated,
		CodeRemoteUnavailable,
		CodeRemoteRejected,
	} {
		if errors.Is(err, sentinelByCode[code]) {
			return code
		}
	}

	return ""
}
