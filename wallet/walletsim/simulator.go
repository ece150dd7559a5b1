package walletsim

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/money"
	libHTTP "github.com/jose254W/cards/wallet/net/http"
	"github.com/jose254W/cards/wallet/record"
)

const component = "walletsim"

type account struct {
	id       string
	history  []record.Record
	balances map[money.Currency]money.Money
	replies  map[string]reply
}

// reply is a stored submit response, replayed for a repeated Idempotency-Key.
type reply struct {
	status int
	body   []byte
}

// Simulator holds the in-memory accounts behind the fiber app.
type Simulator struct {
	cfg       Config
	merchants map[string]struct{}

	mu          sync.Mutex
	users       map[string]User
	accounts    map[string]*account
	latency     time.Duration
	failureRate float64
	failNext    int
	requests    int
}

// New validates cfg and seeds one account per user.
func New(cfg Config) (*Simulator, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:         cfg,
		users:       make(map[string]User, len(cfg.Users)),
		merchants:   make(map[string]struct{}, len(cfg.Merchants)),
		accounts:    make(map[string]*account),
		latency:     cfg.Latency,
		failureRate: cfg.FailureRate,
	}

	for _, m := range cfg.Merchants {
		if m = strings.TrimSpace(m); m != "" {
			s.merchants[m] = struct{}{}
		}
	}

	for _, u := range cfg.Users {
		s.users[u.Email] = u
		s.ensureAccount(u.AccountID, u.Balances)
	}

	return s, nil
}

func (s *Simulator) ensureAccount(id string, seed map[money.Currency]money.Money) *account {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accountLocked(id, seed)
}

func (s *Simulator) accountLocked(id string, seed map[money.Currency]money.Money) *account {
	if acc, ok := s.accounts[id]; ok {
		return acc
	}

	acc := &account{
		id:       id,
		balances: make(map[money.Currency]money.Money, len(money.Currencies())),
		replies:  make(map[string]reply),
	}

	for _, c := range money.Currencies() {
		acc.balances[c] = money.Zero(c)
		if m, ok := seed[c]; ok && m.Currency == c {
			acc.balances[c] = m
		}
	}

	s.accounts[id] = acc

	return acc
}

func (s *Simulator) hasAccount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.accounts[id]

	return ok
}

// App builds the fiber app serving the payments API.
func (s *Simulator) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          libHTTP.FiberErrorHandler,
	})

	app.Use(libHTTP.WithHTTPLogging(libHTTP.WithCustomLogger(s.cfg.Logger)))
	app.Use(libHTTP.WithTelemetry(s.cfg.Tracer, s.cfg.Metrics, "/health"))
	app.Use(libHTTP.WithRecover(component))

	app.Get("/health", libHTTP.Ping)
	app.Post(constant.PathLogin, s.login)
	app.Post(constant.PathRegister, s.register)

	api := app.Group("/api/wallet", s.authenticate, s.inject)
	api.Get("/transactions", s.transactions)
	api.Get("/balance", s.balance)
	api.Post("/deposit", s.submit(record.TypeDeposit))
	api.Post("/withdraw", s.submit(record.TypeWithdraw))
	api.Post("/pay", s.submit(record.TypePay))
	api.Post("/transfer", s.submit(record.TypeTransfer))

	return app
}

// SetLatency changes the delay applied to wallet requests.
func (s *Simulator) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latency = max(d, 0)
}

// SetFailureRate changes the share of wallet requests answered with 503.
func (s *Simulator) SetFailureRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureRate = min(max(rate, 0), 1)
}

// FailNext answers the next n wallet requests with 503.
func (s *Simulator) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = max(n, 0)
}

// Requests returns how many wallet requests reached the simulator.
func (s *Simulator) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests
}

// Seed appends confirmed records to the history of accountID without
// touching its balance.
func (s *Simulator) Seed(accountID string, records ...record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accountLocked(accountID, nil)
	acc.history = append(acc.history, records...)
}

// History returns a copy of the history of accountID.
func (s *Simulator) History(accountID string) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil
	}

	return slices.Clone(acc.history)
}

// Balance returns the balance of accountID in currency.
func (s *Simulator) Balance(accountID string, currency money.Currency) money.Money {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[accountID]; ok {
		return acc.balances[currency]
	}

	return money.Zero(currency)
}

// inject applies the configured latency and failures. A delayed request is
// still handled after the delay, so a client that gave up meanwhile finds
// the result on its next history fetch.
func (s *Simulator) inject(c *fiber.Ctx) error {
	s.mu.Lock()
	s.requests++
	latency := s.latency

	fail := s.failNext > 0 || (s.failureRate > 0 && rand.Float64() < s.failureRate)
	if s.failNext > 0 {
		s.failNext--
	}
	s.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	if fail {
		return libHTTP.ServiceUnavailable(c)
	}

	return c.Next()
}
