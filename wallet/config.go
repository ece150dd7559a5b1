package wallet

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/reconcile"
)

const (
	DefaultSubmitTimeout = 15 * time.Second
	DefaultPollInterval  = 30 * time.Second
	DefaultSnapshotTTL   = 24 * time.Hour
)

// Config holds the session settings. Fields carry `env` tags for
// SetConfigFromEnvVars.
type Config struct {
	AccountID           string        `env:"WALLET_ACCOUNT_ID"`
	BaseURL             string        `env:"WALLET_BASE_URL"`
	SubmitTimeout       time.Duration `env:"WALLET_SUBMIT_TIMEOUT"`
	ReconcileTolerance  time.Duration `env:"WALLET_RECONCILE_TOLERANCE"`
	ReconcileMaxMisses  int           `env:"WALLET_RECONCILE_MAX_MISSES"`
	ReconcileStaleAfter time.Duration `env:"WALLET_RECONCILE_STALE_AFTER"`
	PollInterval        time.Duration `env:"WALLET_POLL_INTERVAL"`
	SnapshotTTL         time.Duration `env:"WALLET_SNAPSHOT_TTL"`
	Environment         string        `env:"ENV_NAME"`
	LogLevel            string        `env:"LOG_LEVEL"`
}

// DefaultConfig returns a Config with every tunable at its default.
func DefaultConfig() Config {
	return Config{
		SubmitTimeout:      DefaultSubmitTimeout,
		ReconcileTolerance: reconcile.DefaultTolerance,
		ReconcileMaxMisses: reconcile.DefaultMaxMisses,
		PollInterval:       DefaultPollInterval,
		SnapshotTTL:        DefaultSnapshotTTL,
		Environment:        "development",
		LogLevel:           "info",
	}
}

// LoadConfig reads DefaultConfig overridden by the process environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if err := SetConfigFromEnvVars(&cfg); err != nil {
		return Config{}, fmt.Errorf("load wallet config: %w", err)
	}

	return cfg.normalize()
}

// normalize fills zero values with defaults and validates the result.
func (c Config) normalize() (Config, error) {
	defaults := DefaultConfig()

	c.AccountID = strings.TrimSpace(c.AccountID)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = defaults.SubmitTimeout
	}

	if c.ReconcileTolerance == 0 {
		c.ReconcileTolerance = defaults.ReconcileTolerance
	}

	if c.ReconcileMaxMisses == 0 {
		c.ReconcileMaxMisses = defaults.ReconcileMaxMisses
	}

	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}

	if c.SnapshotTTL == 0 {
		c.SnapshotTTL = defaults.SnapshotTTL
	}

	if c.Environment == "" {
		c.Environment = defaults.Environment
	}

	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}

	return c, c.validate()
}

func (c Config) validate() error {
	if c.AccountID == "" {
		return configError("AccountID", "account id is required")
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return configError("BaseURL", "base url must be an absolute http(s) url")
		}
	}

	for name, d := range map[string]time.Duration{
		"SubmitTimeout":       c.SubmitTimeout,
		"ReconcileTolerance":  c.ReconcileTolerance,
		"ReconcileStaleAfter": c.ReconcileStaleAfter,
		"PollInterval":        c.PollInterval,
		"SnapshotTTL":         c.SnapshotTTL,
	} {
		if d < 0 {
			return configError(name, "duration must not be negative")
		}
	}

	if c.ReconcileMaxMisses < 0 {
		return configError("ReconcileMaxMisses", "must not be negative")
	}

	return nil
}

func (c Config) reconcileOptions(fetchedAt time.Time) reconcile.Options {
	return reconcile.Options{
		Tolerance:  c.ReconcileTolerance,
		MaxMisses:  c.ReconcileMaxMisses,
		StaleAfter: c.ReconcileStaleAfter,
		FetchedAt:  fetchedAt,
	}
}

func configError(field, msg string) error {
	return fmt.Errorf("invalid wallet config: %w", constant.NewValidationError(field, msg))
}
