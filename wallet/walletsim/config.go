package walletsim

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = time.Hour

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid simulator config")

// User is a login of the simulator. Balances seeds the account.
type User struct {
	Email     string
	Password  string
	AccountID string
	Balances  map[money.Currency]money.Money
}

// Config configures a Simulator.
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Users    []User
	// Merchants is the allow-list of merchant ids. Empty allows any merchant.
	Merchants []string
	// Latency delays every wallet request before it is handled.
	Latency time.Duration
	// FailureRate is the share of wallet requests answered with 503, in [0, 1].
	FailureRate float64
	Logger      log.Logger
	Tracer      trace.Tracer
	Metrics     *metrics.MetricsFactory
	Clock       func() time.Time
}

func (c Config) normalize() (Config, error) {
	if len(c.Secret) == 0 {
		return c, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}

	if c.TokenTTL < 0 || c.Latency < 0 {
		return c, fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	if c.FailureRate < 0 || c.FailureRate > 1 {
		return c, fmt.Errorf("%w: failure rate %v outside [0, 1]", ErrInvalidConfig, c.FailureRate)
	}

	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}

	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	seen := make(map[string]struct{}, len(c.Users))

	for i, u := range c.Users {
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		u.AccountID = strings.TrimSpace(u.AccountID)

		if u.Email == "" || u.AccountID == "" {
			return c, fmt.Errorf("%w: user %d needs an email and an account id", ErrInvalidConfig, i)
		}

		if _, dup := seen[u.Email]; dup {
			return c, fmt.Errorf("%w: duplicate user %q", ErrInvalidConfig, u.Email)
		}

		seen[u.Email] = struct{}{}
		c.Users[i] = u
	}

	return c, nil
}
