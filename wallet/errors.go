package wallet

import (
	"errors"

	constant "github.com/jose254W/cards/wallet/constants"
)

// Sentinel errors. Match them with errors.Is; every error returned by the
// session wraps at most one of them.
var (
	ErrValidation        = constant.ErrValidation
	ErrInsufficientFunds = constant.ErrInsufficientFunds
	ErrDuplicateID       = constant.ErrDuplicateID
	ErrNotFound          = constant.ErrNotFound
	ErrUnauthenticated   = constant.ErrUnauthenticated
	ErrRemoteUnavailable = constant.ErrRemoteUnavailable
	ErrRemoteRejected    = constant.ErrRemoteRejected
)

var (
	// ErrSessionClosed is returned by submissions after Close.
	ErrSessionClosed = errors.New("wallet session closed")
	// ErrNilRemote is returned by NewSession without a Remote.
	ErrNilRemote = errors.New("wallet remote is nil")
)

// DomainError is the structured form of validation and business errors.
type DomainError = constant.DomainError

// ErrorCode returns the stable WLT code classifying err, or "" when err is
// nil or carries no wallet classification.
func ErrorCode(err error) string {
	return constant.CodeOf(err)
}
