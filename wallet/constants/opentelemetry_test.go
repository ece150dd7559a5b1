//go:build unit

package constant

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMetricLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "operation kind kept", input: "transfer", want: "transfer"},
		{name: "at limit kept", input: strings.Repeat("x", MaxMetricLabelLength), want: strings.Repeat("x", MaxMetricLabelLength)},
		{name: "over limit truncated", input: strings.Repeat("y", MaxMetricLabelLength+9), want: strings.Repeat("y", MaxMetricLabelLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, SanitizeMetricLabel(tt.input))
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", TruncateUTF8("abc", 0))
	assert.Equal(t, "abc", TruncateUTF8("abc", 5))
	assert.Equal(t, "ab", TruncateUTF8("abc", 2))

	// "é" is two bytes; a cut inside it drops the whole rune.
	got := TruncateUTF8("aé", 2)
	assert.Equal(t, "a", got)
	assert.True(t, utf8.ValidString(got))

	long := strings.Repeat("€", 100)
	got = SanitizeMetricLabel(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), MaxMetricLabelLength)
	assert.Equal(t, strings.Repeat("€", MaxMetricLabelLength/3), got)
}

func TestWalletRoutesShareAPIPrefix(t *testing.T) {
	t.Parallel()

	for _, path := range []string{PathTransactions, PathBalance, PathDeposit, PathWithdraw, PathPay, PathTransfer} {
		assert.True(t, strings.HasPrefix(path, "/api/wallet/"), path)
	}
}
