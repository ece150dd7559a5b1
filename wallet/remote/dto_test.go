//go:build unit

package remote

import (
	"encoding/json"
	"testing"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fields  []string
		want    int64
		wantErr bool
	}{
		{name: "integer millis", fields: []string{`1767000000000`}, want: 1767000000000},
		{name: "float millis", fields: []string{`1767000000000.9`}, want: 1767000000000},
		{name: "exponent millis", fields: []string{`1.767e12`}, want: 1767000000000},
		{name: "digit string", fields: []string{`"1767000000000"`}, want: 1767000000000},
		{name: "rfc3339 fallback field", fields: []string{``, `"2026-01-01T00:00:00Z"`}, want: 1767225600000},
		{name: "huge float", fields: []string{`1e300`}, wantErr: true},
		{name: "huge negative float", fields: []string{`-1e300`}, wantErr: true},
		{name: "not a number", fields: []string{`true`}, wantErr: true},
		{name: "missing", fields: []string{`null`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raws := make([]json.RawMessage, 0, len(tt.fields))
			for _, f := range tt.fields {
				raws = append(raws, json.RawMessage(f))
			}

			got, err := parseTime(raws...)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, constant.ErrValidation)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
