package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	constant "github.com/jose254W/cards/wallet/constants"
)

// ErrUnauthenticated is returned when no usable credential is available.
var ErrUnauthenticated = constant.ErrUnauthenticated

// TokenProvider returns the bearer token for the current account.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticProvider always returns the same token.
type StaticProvider string

// Token returns the fixed token, or ErrUnauthenticated when it is blank.
func (p StaticProvider) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(p))
	if token == "" {
		return "", fmt.Errorf("%w: no token configured", ErrUnauthenticated)
	}

	return token, nil
}

// FuncProvider adapts a function to TokenProvider.
type FuncProvider func(ctx context.Context) (string, error)

// Token calls f.
func (f FuncProvider) Token(ctx context.Context) (string, error) {
	if f == nil {
		return "", fmt.Errorf("%w: nil token func", ErrUnauthenticated)
	}

	token, err := f(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", err
		}

		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	return token, nil
}

// Option configures an ExpiryChecked provider.
type Option func(*expiryChecked)

// AllowOpaque accepts tokens that are not JWTs. Their expiry cannot be
// checked, so they pass through unchanged.
func AllowOpaque() Option {
	return func(e *expiryChecked) { e.allowOpaque = true }
}

type expiryChecked struct {
	next        TokenProvider
	clock       func() time.Time
	skew        time.Duration
	allowOpaque bool
	parser      *jwt.Parser

	mu     sync.Mutex
	cached string
	exp    time.Time
}

// ExpiryChecked wraps next and rejects tokens whose exp claim is at or before
// clock()+skew. Claims are decoded without verifying the signature; the
// payments service stays the authority on validity.
func ExpiryChecked(next TokenProvider, clock func() time.Time, skew time.Duration, opts ...Option) TokenProvider {
	if clock == nil {
		clock = time.Now
	}

	if skew < 0 {
		skew = 0
	}

	e := &expiryChecked{
		next:   next,
		clock:  clock,
		skew:   skew,
		parser: jwt.NewParser(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

// Token fetches a token from the wrapped provider and checks its expiry.
func (e *expiryChecked) Token(ctx context.Context) (string, error) {
	if e.next == nil {
		return "", fmt.Errorf("%w: no token provider", ErrUnauthenticated)
	}

	token, err := e.next.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", err
		}

		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}

	exp, hasExp, err := e.expiry(token)
	if err != nil {
		if e.allowOpaque {
			return token, nil
		}

		return "", fmt.Errorf("%w: undecodable token: %w", ErrUnauthenticated, err)
	}

	if hasExp && !exp.After(e.clock().Add(e.skew)) {
		return "", fmt.Errorf("%w: token expired at %s", ErrUnauthenticated, exp.UTC().Format(time.RFC3339))
	}

	return token, nil
}

func (e *expiryChecked) expiry(token string) (time.Time, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token == e.cached {
		return e.exp, !e.exp.IsZero(), nil
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := e.parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false, err
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	e.cached, e.exp = token, exp

	return exp, !exp.IsZero(), nil
}
