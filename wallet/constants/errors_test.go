//go:build unit

package constant

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_UnwrapsToSentinel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     string
		sentinel error
	}{
		{CodeValidation, ErrValidation},
		{CodeCurrencyMismatch, ErrValidation},
		{CodeAmountOverflow, ErrValidation},
		{CodeInvalidMerchantQR, ErrValidation},
		{CodeInsufficientFunds, ErrInsufficientFunds},
		{CodeSubmitTimeout, ErrRemoteUnavailable},
		{CodeRemoteRejected, ErrRemoteRejected},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()

			err := fmt.Errorf("submit: %w", NewDomainError(tt.code, "amount", "bad"))
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestDomainError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WLT-0001: must be positive (amount)", NewValidationError("amount", "must be positive").Error())
	assert.Equal(t, "WLT-0004: gone", NewDomainError(CodeNotFound, "", "gone").Error())
	assert.Nil(t, DomainError{Code: "X"}.Unwrap())
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, CodeCurrencyMismatch, CodeOf(NewDomainError(CodeCurrencyMismatch, "", "x")))
	assert.Equal(t, CodeNotFound, CodeOf(fmt.Errorf("confirm: %w", ErrNotFound)))
	assert.Equal(t, CodeRemoteUnavailable, CodeOf(fmt.Errorf("%w: timeout", ErrRemoteUnavailable)))
}
