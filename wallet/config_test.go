//go:build unit

package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("WALLET_ACCOUNT_ID", " acc-9 ")
	t.Setenv("WALLET_BASE_URL", "https://pay.example.com/")
	t.Setenv("WALLET_SUBMIT_TIMEOUT", "5s")
	t.Setenv("WALLET_RECONCILE_MAX_MISSES", "3")
	t.Setenv("WALLET_RECONCILE_STALE_AFTER", "1h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "acc-9", cfg.AccountID)
	assert.Equal(t, "https://pay.example.com", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 3, cfg.ReconcileMaxMisses)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileTolerance)

	opts := cfg.reconcileOptions(time.Unix(10, 0))
	assert.Equal(t, time.Hour, opts.StaleAfter)
	assert.Equal(t, 3, opts.MaxMisses)
	assert.Equal(t, time.Unix(10, 0), opts.FetchedAt)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("WALLET_ACCOUNT_ID", "acc")
	t.Setenv("WALLET_SUBMIT_TIMEOUT", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WALLET_SUBMIT_TIMEOUT")
}

func TestConfig_Normalize(t *testing.T) {
	t.Parallel()

	cfg, err := Config{AccountID: "acc"}.normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultSubmitTimeout, cfg.SubmitTimeout)
	assert.Equal(t, DefaultSnapshotTTL, cfg.SnapshotTTL)

	for name, c := range map[string]Config{
		"missing account":  {},
		"relative url":     {AccountID: "acc", BaseURL: "pay.example.com"},
		"ftp url":          {AccountID: "acc", BaseURL: "ftp://pay.example.com"},
		"negative timeout": {AccountID: "acc", SubmitTimeout: -time.Second},
		"negative misses":  {AccountID: "acc", ReconcileMaxMisses: -1},
	} {
		_, err := c.normalize()
		assert.ErrorIs(t, err, ErrValidation, name)
	}
}
