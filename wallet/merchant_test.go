//go:build unit

package wallet

import (
	"strings"
	"testing"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMerchantCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		payload string
		want    Merchant
		field   string
	}{
		{payload: "m-42|Mama Mboga", want: Merchant{ID: "m-42", Name: "Mama Mboga"}},
		{payload: "  m-42 | Kiosk  ", want: Merchant{ID: "m-42", Name: "Kiosk"}},
		{payload: "m-7", want: Merchant{ID: "m-7"}},
		{payload: "", field: "payload"},
		{payload: "|Nameless", field: "merchantId"},
		{payload: "m-1|a|b", field: "merchantName"},
		{payload: strings.Repeat("x", 600), field: "payload"},
	}

	for _, tt := range tests {
		got, err := ParseMerchantCode(tt.payload)

		if tt.field == "" {
			require.NoError(t, err, tt.payload)
			assert.Equal(t, tt.want, got)

			continue
		}

		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, constant.CodeInvalidMerchantQR, ErrorCode(err))

		var domainErr DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, tt.field, domainErr.Field)
	}
}
