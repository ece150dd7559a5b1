package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jose254W/cards/wallet"
	"github.com/jose254W/cards/wallet/auth"
	"github.com/jose254W/cards/wallet/backoff"
	"github.com/jose254W/cards/wallet/circuitbreaker"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"github.com/jose254W/cards/wallet/record"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// BreakerName is the circuit breaker guarding the payments service.
	BreakerName = "payments"

	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
	userAgent          = "cards-wallet/1"
)

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid remote config")

// Config configures a Client.
type Config struct {
	BaseURL string `env:"WALLET_BASE_URL"`
	// Timeout bounds a single HTTP exchange. Defaults to 10s.
	Timeout time.Duration `env:"WALLET_HTTP_TIMEOUT"`
}

// Client calls the payments service.
type Client struct {
	base     *url.URL
	http     *http.Client
	tokens   auth.TokenProvider
	breakers circuitbreaker.Manager
	reads    backoff.Policy
	logger   log.Logger
	tracer   trace.Tracer
	metrics  *metrics.MetricsFactory
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenProvider sets the bearer token source. Without one, requests carry
// no Authorization header.
func WithTokenProvider(tokens auth.TokenProvider) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithCircuitBreakerManager shares a breaker manager with other components.
func WithCircuitBreakerManager(m circuitbreaker.Manager) Option {
	return func(c *Client) {
		if m != nil {
			c.breakers = m
		}
	}
}

// WithReadPolicy overrides the retry policy of history and balance reads.
func WithReadPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.reads = p }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMetricsFactory records call latency through f.
func WithMetricsFactory(f *metrics.MetricsFactory) Option {
	return func(c *Client) {
		if f != nil {
			c.metrics = f
		}
	}
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	base, err := url.Parse(raw)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: base url %q must be an absolute http(s) url", ErrInvalidConfig, cfg.BaseURL)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		reads:   backoff.DefaultReadPolicy,
		logger:  log.NewNop(),
		tracer:  otel.Tracer(constant.TelemetrySDKName),
		metrics: metrics.NewNopFactory(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.breakers == nil {
		c.breakers = circuitbreaker.NewManager(c.logger)
	}

	breakerCfg := circuitbreaker.HTTPServiceConfig()
	breakerCfg.IsSuccessful = countsAsSuccess

	if _, err := c.breakers.GetOrCreate(BreakerName, breakerCfg); err != nil {
		return nil, fmt.Errorf("new remote client: %w", err)
	}

	return c, nil
}

// countsAsSuccess keeps business answers from tripping the breaker.
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, constant.ErrRemoteRejected) ||
		errors.Is(err, constant.ErrUnauthenticated) ||
		errors.Is(err, constant.ErrValidation)
}

// FetchHistory implements wallet.Remote. Entries that cannot be converted are
// skipped and logged.
func (c *Client) FetchHistory(ctx context.Context) ([]record.Record, error) {
	var body historyResponse

	if err := c.read(ctx, "history", constant.PathTransactions, &body); err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(body.Transactions))

	for i, dto := range body.Transactions {
		r, err := dto.Record()
		if err != nil {
			c.logger.Log(ctx, log.LevelWarn, "skipping malformed transaction",
				log.Int("index", i),
				log.Err(err),
			)

			continue
		}

		records = append(records, r)
	}

	return records, nil
}

// FetchBalance implements wallet.Remote.
func (c *Client) FetchBalance(ctx context.Context) (map[money.Currency]money.Money, error) {
	var body BalanceDTO

	if err := c.read(ctx, "balance", constant.PathBalance, &body); err != nil {
		return nil, err
	}

	balances, err := body.Balances()
	if err != nil {
		return nil, unavailable("malformed balance: %v", err)
	}

	return balances, nil
}

// Deposit implements wallet.Remote.
func (c *Client) Deposit(ctx context.Context, req wallet.SubmitRequest) (record.Record, error) {
	return c.submit(ctx, "deposit", constant.PathDeposit, req)
}

// Withdraw implements wallet.Remote.
func (c *Client) Withdraw(ctx context.Context, req wallet.SubmitRequest) (record.Record, error) {
	return c.submit(ctx, "withdraw", constant.PathWithdraw, req)
}

// Pay implements wallet.Remote.
func (c *Client) Pay(ctx context.Context, req wallet.SubmitRequest) (record.Record, error) {
	return c.submit(ctx, "pay", constant.PathPay, req)
}

// Transfer implements wallet.Remote.
func (c *Client) Transfer(ctx context.Context, req wallet.SubmitRequest) (record.Record, error) {
	return c.submit(ctx, "transfer", constant.PathTransfer, req)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp LoginResponse

	err := c.exchange(ctx, "login", http.MethodPost, constant.PathLogin, "", LoginRequest{Email: email, Password: password}, &resp, false)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	if strings.TrimSpace(resp.Token) == "" {
		return "", unauthenticated("login response without token")
	}

	return resp.Token, nil
}

// Register creates a user and returns a bearer token for it, logging in
// when the service does not hand one back.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return "", constant.NewValidationError("email", "email and password are required")
	}

	var resp RegisterResponse

	if err := c.exchange(ctx, "register", http.MethodPost, constant.PathRegister, "", req, &resp, false); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}

	if token := strings.TrimSpace(resp.Token); token != "" {
		return token, nil
	}

	return c.Login(ctx, req.Email, req.Password)
}

func (c *Client) read(ctx context.Context, endpoint, path string, out any) error {
	retryable := func(err error) bool {
		return errors.Is(err, constant.ErrRemoteUnavailable) && !errors.Is(err, circuitbreaker.ErrOpen)
	}

	return backoff.Retry(ctx, c.reads, retryable, func(ctx context.Context) error {
		return c.exchange(ctx, endpoint, http.MethodGet, path, "", nil, out, true)
	})
}

func (c *Client) submit(ctx context.Context, endpoint, path string, req wallet.SubmitRequest) (record.Record, error) {
	body := SubmitBody{
		Amount:     json.Number(req.Money.Major().StringFixed(2)),
		Currency:   string(req.Money.Currency),
		Timestamp:  req.Timestamp,
		MerchantID: req.MerchantID,
		Note:       req.Note,
	}

	if t := req.Transfer; t != nil {
		body.RecipientType = string(t.RecipientType)
		body.Recipient = t.Recipient
		body.AccountNumber = t.AccountNumber
	}

	var resp SubmitResponse

	if err := c.exchange(ctx, endpoint, http.MethodPost, path, req.OperationID, body, &resp, true); err != nil {
		return record.Record{}, err
	}

	if resp.Transaction == nil {
		return record.Record{}, fmt.Errorf("%s: %w", endpoint,
			constant.NewDomainError(constant.CodeRemoteInconsistent, "transaction", "response without transaction"))
	}

	r, err := resp.Transaction.Record()
	if err != nil {
		return record.Record{}, fmt.Errorf("%s: %w", endpoint,
			constant.NewDomainError(constant.CodeRemoteInconsistent, "transaction", err.Error()))
	}

	return r, nil
}

// exchange performs one request through the circuit breaker.
func (c *Client) exchange(ctx context.Context, endpoint, method, path, idempotencyKey string, in, out any, authenticated bool) error {
	ctx, span := c.tracer.Start(ctx, "remote."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	if in != nil {
		if err := libOpentelemetry.SetSpanAttributesFromStruct(&span, constant.AttrPrefixAppRequest+"payload", in); err != nil {
			c.logger.Log(ctx, log.LevelDebug, "failed to attach request payload to span", log.Err(err))
		}
	}

	started := time.Now()

	_, err := c.breakers.Execute(BreakerName, func() (any, error) {
		return nil, c.do(ctx, method, path, idempotencyKey, in, out, authenticated)
	})

	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", constant.ErrRemoteUnavailable, err)
	}

	if mErr := c.metrics.RecordRemoteLatency(ctx, endpoint, outcome(err), time.Since(started)); mErr != nil {
		c.logger.Log(ctx, log.LevelDebug, "failed to record remote latency", log.Err(mErr))
	}

	if err != nil {
		if errors.Is(err, constant.ErrRemoteUnavailable) {
			libOpentelemetry.HandleSpanError(&span, "Payments service call failed", err)
		} else {
			libOpentelemetry.HandleSpanBusinessErrorEvent(&span, "remote.rejected", err)
		}

		c.logger.Log(ctx, log.LevelDebug, "payments service call failed",
			log.String("endpoint", endpoint),
			log.String("outcome", outcome(err)),
			log.Err(err),
		)

		return err
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out any, authenticated bool) error {
	var payload io.Reader

	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", constant.ContentTypeJSON)
	req.Header.Set(constant.HeaderUserAgent, userAgent)

	if in != nil {
		req.Header.Set(constant.HeaderContentType, constant.ContentTypeJSON)
	}

	if headerID := wallet.HeaderIDFromContext(ctx); headerID != "" {
		req.Header.Set(constant.HeaderID, headerID)
	}

	if idempotencyKey != "" {
		req.Header.Set(constant.IdempotencyKey, idempotencyKey)
	}

	if authenticated && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		req.Header.Set(constant.Authorization, constant.Bearer+" "+token)
	}

	libOpentelemetry.InjectHTTPContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return unavailable("read response: %v", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return unavailable("decode %s response: %v", path, err)
	}

	return nil
}

func statusError(status int, raw []byte) error {
	var body ErrorBody
	_ = json.Unmarshal(raw, &body)

	msg := firstNonEmpty(body.Msg, body.Message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return unauthenticated("status %d", status)
	case status == http.StatusNotFound && strings.Contains(strings.ToLower(msg), "user"):
		return unauthenticated("%s", msg)
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return unavailable("%s", log.SanitizeExternalResponse(status))
	case status >= http.StatusInternalServerError:
		return unavailable("%s", log.SanitizeExternalResponse(status))
	}

	if msg == "" {
		msg = http.StatusText(status)
	}

	return &RejectedError{Status: status, Code: body.Code, Message: msg}
}

var _ wallet.Remote = (*Client)(nil)

