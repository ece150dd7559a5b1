//go:build unit

package remote_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jose254W/cards/wallet"
	"github.com/jose254W/cards/wallet/auth"
	"github.com/jose254W/cards/wallet/backoff"
	"github.com/jose254W/cards/wallet/circuitbreaker"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/money"
	"github.com/jose254W/cards/wallet/record"
	"github.com/jose254W/cards/wallet/remote"
	"github.com/jose254W/cards/wallet/walletsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

var fastReads = backoff.Policy{Base: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 3}

func startSim(t *testing.T) (*walletsim.Simulator, string) {
	t.Helper()

	sim, err := walletsim.New(walletsim.Config{
		Secret: []byte("client-test"),
		Users: []walletsim.User{{
			Email: "ana@example.com", Password: "pw", AccountID: "acc-ana",
			Balances: map[money.Currency]money.Money{money.SmartPay: money.New(50000, money.SmartPay)},
		}},
		Merchants: []string{"m-1"},
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := sim.App()

	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() { _ = app.Shutdown() })

	return sim, "http://" + ln.Addr().String()
}

func newClient(t *testing.T, baseURL string, opts ...remote.Option) *remote.Client {
	t.Helper()

	c, err := remote.New(remote.Config{BaseURL: baseURL, Timeout: 2 * time.Second},
		append([]remote.Option{remote.WithReadPolicy(fastReads)}, opts...)...)
	require.NoError(t, err)

	return c
}

func loggedIn(t *testing.T, baseURL string, opts ...remote.Option) *remote.Client {
	t.Helper()

	token, err := newClient(t, baseURL).Login(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)

	return newClient(t, baseURL, append(opts, remote.WithTokenProvider(auth.StaticProvider(token)))...)
}

func submitReq(id string, amount int64) wallet.SubmitRequest {
	return wallet.SubmitRequest{
		OperationID: id,
		Money:       money.New(amount, money.SmartPay),
		Timestamp:   time.Now().UnixMilli(),
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	for _, cfg := range []remote.Config{
		{},
		{BaseURL: "not a url"},
		{BaseURL: "ftp://host"},
		{BaseURL: "http://host", Timeout: -time.Second},
	} {
		_, err := remote.New(cfg)
		assert.ErrorIs(t, err, remote.ErrInvalidConfig, cfg.BaseURL)
	}
}

func TestClient_AgainstSimulator(t *testing.T) {
	t.Parallel()

	sim, base := startSim(t)
	ctx := context.Background()
	client := loggedIn(t, base)

	dep, err := client.Deposit(ctx, submitReq("local-d", 12550))
	require.NoError(t, err)
	assert.False(t, dep.IsProvisional())
	assert.Equal(t, record.StatusConfirmed, dep.Status)
	assert.Equal(t, money.New(12550, money.SmartPay), dep.Money)

	pay := submitReq("local-p", 1000)
	pay.MerchantID = "m-1"

	paid, err := client.Pay(ctx, pay)
	require.NoError(t, err)
	assert.Equal(t, "m-1", paid.Counterparty)

	transfer := submitReq("local-t", 500)
	transfer.Transfer = &wallet.TransferRequest{RecipientType: wallet.RecipientMobileMoney, Recipient: "+254700000000"}

	sent, err := client.Transfer(ctx, transfer)
	require.NoError(t, err)
	assert.Equal(t, record.DirectionOut, sent.Direction)

	_, err = client.Withdraw(ctx, submitReq("local-w", 100))
	require.NoError(t, err)

	history, err := client.FetchHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, dep, history[0])

	balances, err := client.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, money.New(50000+12550-1000-500-100, money.SmartPay), balances[money.SmartPay])
	assert.Equal(t, sim.Balance("acc-ana", money.SmartPay), balances[money.SmartPay])
}

func TestClient_IdempotencyKeyReplays(t *testing.T) {
	t.Parallel()

	sim, base := startSim(t)
	client := loggedIn(t, base)

	first, err := client.Withdraw(context.Background(), submitReq("local-same", 700))
	require.NoError(t, err)

	second, err := client.Withdraw(context.Background(), submitReq("local-same", 700))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, sim.History("acc-ana"), 1)
}

func TestClient_Rejections(t *testing.T) {
	t.Parallel()

	_, base := startSim(t)
	client := loggedIn(t, base)

	_, err := client.Withdraw(context.Background(), submitReq("local-big", 10_000_000))
	require.Error(t, err)
	assert.ErrorIs(t, err, constant.ErrRemoteRejected)
	assert.ErrorIs(t, err, constant.ErrInsufficientFunds)

	var rejected *remote.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Status)
	assert.Equal(t, walletsim.CodeInsufficientFunds, rejected.Code)

	pay := submitReq("local-m", 100)
	pay.MerchantID = "m-unknown"

	_, err = client.Pay(context.Background(), pay)
	assert.ErrorIs(t, err, constant.ErrRemoteRejected)
	assert.NotErrorIs(t, err, constant.ErrInsufficientFunds)
}

func TestClient_Unauthenticated(t *testing.T) {
	t.Parallel()

	_, base := startSim(t)
	ctx := context.Background()

	_, err := newClient(t, base).FetchBalance(ctx)
	assert.ErrorIs(t, err, constant.ErrUnauthenticated, "no token")

	_, err = newClient(t, base, remote.WithTokenProvider(auth.StaticProvider("garbage"))).FetchHistory(ctx)
	assert.ErrorIs(t, err, constant.ErrUnauthenticated, "bad token")

	_, err = newClient(t, base, remote.WithTokenProvider(auth.StaticProvider(" "))).Deposit(ctx, submitReq("local-x", 1))
	assert.ErrorIs(t, err, constant.ErrUnauthenticated, "blank provider token")

	_, err = newClient(t, base).Login(ctx, "ghost@example.com", "pw")
	assert.ErrorIs(t, err, constant.ErrUnauthenticated, "unknown user")

	_, err = newClient(t, base).Login(ctx, "ana@example.com", "nope")
	assert.ErrorIs(t, err, constant.ErrUnauthenticated, "wrong password")
}

func TestClient_RegisterThenUseToken(t *testing.T) {
	t.Parallel()

	_, base := startSim(t)
	ctx := context.Background()
	req := remote.RegisterRequest{FirstName: "Bo", Email: "bo@example.com", Password: "pw2", PhoneNumber: "0700000000"}

	token, err := newClient(t, base).Register(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	balances, err := newClient(t, base, remote.WithTokenProvider(auth.StaticProvider(token))).FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balances[money.SmartPay].IsZero())

	_, err = newClient(t, base).Register(ctx, req)
	assert.ErrorIs(t, err, constant.ErrRemoteRejected, "duplicate email")

	_, err = newClient(t, base).Register(ctx, remote.RegisterRequest{Email: "x@example.com"})
	assert.ErrorIs(t, err, constant.ErrValidation, "missing password")
}

func TestClient_ReadsRetrySubmitsDoNot(t *testing.T) {
	t.Parallel()

	sim, base := startSim(t)
	client := loggedIn(t, base)
	ctx := context.Background()

	sim.FailNext(2)

	_, err := client.FetchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sim.Requests())

	sim.FailNext(1)

	_, err = client.Deposit(ctx, submitReq("local-once", 100))
	assert.ErrorIs(t, err, constant.ErrRemoteUnavailable)
	assert.Equal(t, 4, sim.Requests())

	sim.FailNext(5)

	_, err = client.FetchBalance(ctx)
	assert.ErrorIs(t, err, constant.ErrRemoteUnavailable)
	assert.Equal(t, 7, sim.Requests(), "reads stop after the policy's attempts")
}

type captured struct {
	mu      sync.Mutex
	headers []http.Header
}

func (c *captured) add(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.headers = append(c.headers, h.Clone())
}

func (c *captured) last() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.headers[len(c.headers)-1]
}

func TestClient_RequestHeaders(t *testing.T) {
	t.Parallel()

	var seen captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Header)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"msg":"ok","transaction":{"id":"srv-1","type":"DEPOSIT","amount":"1.00","currency":"SMART_PAY","timestamp":5}}`))
	}))
	t.Cleanup(srv.Close)

	client := newClient(t, srv.URL, remote.WithTokenProvider(auth.StaticProvider("tok-1")))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))
	ctx = wallet.ContextWithHeaderID(ctx, "req-9")

	r, err := client.Deposit(ctx, submitReq("local-h", 100))
	require.NoError(t, err)
	assert.Equal(t, "srv-1", r.ID)

	h := seen.last()
	assert.Equal(t, "Bearer tok-1", h.Get(constant.Authorization))
	assert.Equal(t, "local-h", h.Get(constant.IdempotencyKey))
	assert.Equal(t, "req-9", h.Get(constant.HeaderID))
	assert.Equal(t, constant.ContentTypeJSON, h.Get(constant.HeaderContentType))
	assert.Equal(t, "application/json", h.Get("Accept"))

	carrier := propagation.HeaderCarrier(h)
	if tp := carrier.Get("traceparent"); tp != "" {
		assert.Contains(t, tp, "4bf92f3577b34da6a3ce929d0e0e4736")
	}
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"msg":"token expired"}`, constant.ErrUnauthenticated},
		{"forbidden", http.StatusForbidden, ``, constant.ErrUnauthenticated},
		{"user not found", http.StatusNotFound, `{"msg":"User not found"}`, constant.ErrUnauthenticated},
		{"route not found", http.StatusNotFound, `{"msg":"no such route"}`, constant.ErrRemoteRejected},
		{"insufficient by message", http.StatusBadRequest, `{"message":"Insufficient balance"}`, constant.ErrInsufficientFunds},
		{"rate limited", http.StatusTooManyRequests, ``, constant.ErrRemoteUnavailable},
		{"server error", http.StatusBadGateway, `<html>`, constant.ErrRemoteUnavailable},
		{"no transaction", http.StatusCreated, `{"msg":"ok"}`, constant.ErrRemoteUnavailable},
		{"bad transaction", http.StatusCreated, `{"msg":"ok","transaction":{"type":"DEPOSIT","amount":"1","currency":"SMART_PAY","timestamp":1}}`, constant.ErrRemoteUnavailable},
		{"garbage success", http.StatusOK, `{not json`, constant.ErrRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := newClient(t, srv.URL).Deposit(context.Background(), submitReq("local-s", 100))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			if tt.status == http.StatusCreated {
				assert.Equal(t, constant.CodeRemoteInconsistent, constant.CodeOf(err))
			}
		})
	}
}

func TestClient_HistorySkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"transactions":[
			{"_id":"legacy-1","transactionType":"Deposit","amount":10.5,"currency":"SMART_PAY","date":"2026-01-02T03:04:05Z"},
			{"type":"DEPOSIT","amount":"1","currency":"SMART_PAY","timestamp":1},
			{"id":"bad-currency","type":"DEPOSIT","amount":"1","currency":"EUR","timestamp":1},
			{"id":"w-1","type":"WITHDRAW","amount":"-2","currency":"LOCAL_CURRENCY","timestamp":"1767000000000","status":"failed"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	history, err := newClient(t, srv.URL).FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "legacy-1", history[0].ID)
	assert.Equal(t, money.New(1050, money.SmartPay), history[0].Money)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), history[0].Timestamp)

	assert.Equal(t, money.New(200, money.LocalCurrency), history[1].Money)
	assert.Equal(t, record.DirectionOut, history[1].Direction)
	assert.Equal(t, record.StatusFailed, history[1].Status)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()

		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	breakers := circuitbreaker.NewManager(nil)
	client := newClient(t, srv.URL,
		remote.WithCircuitBreakerManager(breakers),
		remote.WithReadPolicy(backoff.Policy{MaxAttempts: 1}),
	)

	for i := 0; i < 5; i++ {
		_, err := client.FetchBalance(context.Background())
		require.ErrorIs(t, err, constant.ErrRemoteUnavailable)
	}

	_, err := client.FetchBalance(context.Background())
	assert.ErrorIs(t, err, constant.ErrRemoteUnavailable)
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, circuitbreaker.StateOpen, breakers.GetState(remote.BreakerName))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, hits, "an open breaker rejects without calling the service")
}

func TestClient_RejectionsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"msg":"insufficient funds","code":"INSUFFICIENT_FUNDS"}`))
	}))
	t.Cleanup(srv.Close)

	breakers := circuitbreaker.NewManager(nil)
	client := newClient(t, srv.URL, remote.WithCircuitBreakerManager(breakers))

	for i := 0; i < 10; i++ {
		_, err := client.Withdraw(context.Background(), submitReq("local-r", 1))
		require.ErrorIs(t, err, constant.ErrInsufficientFunds)
	}

	assert.Equal(t, circuitbreaker.StateClosed, breakers.GetState(remote.BreakerName))
}

func TestClient_SpanPayloadIsRedacted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"msg":"ok","transaction":{"id":"srv-t","type":"TRANSFER","amount":"2.00","currency":"SMART_PAY","timestamp":5}}`))
	}))
	t.Cleanup(srv.Close)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	client := newClient(t, srv.URL,
		remote.WithTokenProvider(auth.StaticProvider("tok-1")),
		remote.WithTracer(provider.Tracer("remote-test")),
	)

	req := submitReq("local-t", 200)
	req.Transfer = &wallet.TransferRequest{
		RecipientType: wallet.RecipientBank,
		Recipient:     "Equity",
		AccountNumber: "0011223344",
		Amount:        req.Money,
	}

	_, err := client.Transfer(context.Background(), req)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "remote.transfer", spans[0].Name())

	var payload string

	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == constant.AttrPrefixAppRequest+"payload" {
			payload = kv.Value.AsString()
		}
	}

	assert.Contains(t, payload, `"recipient":"Equity"`)
	assert.Contains(t, payload, `"accountNumber":"********"`)
	assert.NotContains(t, payload, "0011223344")
}
