package walletsim

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	constant "github.com/jose254W/cards/wallet/constants"
	libHTTP "github.com/jose254W/cards/wallet/net/http"
	"github.com/jose254W/cards/wallet/remote"
)

const localAccountID = "accountID"

// IssueToken signs a token for accountID valid for the configured TTL.
func (s *Simulator) IssueToken(accountID string) (string, error) {
	now := s.cfg.Clock()

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   accountID,
		Issuer:    constant.TelemetrySDKName + "/walletsim",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return token, nil
}

func (s *Simulator) verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return "", jwt.ErrTokenInvalidSubject
	}

	return claims.Subject, nil
}

func (s *Simulator) login(c *fiber.Ctx) error {
	var req remote.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return libHTTP.BadRequest(c, constant.CodeValidation, "malformed login body")
	}

	user, ok := s.user(req.Email)
	if !ok {
		return libHTTP.NotFound(c, "user not found")
	}

	if user.Password != req.Password {
		return libHTTP.Unauthorized(c, "invalid credentials")
	}

	token, err := s.IssueToken(user.AccountID)
	if err != nil {
		return err
	}

	return libHTTP.Respond(c, fiber.StatusOK, remote.LoginResponse{Token: token})
}

func (s *Simulator) register(c *fiber.Ctx) error {
	var req remote.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return libHTTP.BadRequest(c, constant.CodeValidation, "malformed registration body")
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || req.Password == "" {
		return libHTTP.BadRequest(c, constant.CodeValidation, "email and password are required")
	}

	user := User{Email: email, Password: req.Password, AccountID: uuid.NewString()}

	s.mu.Lock()
	_, taken := s.users[email]
	if !taken {
		s.users[email] = user
		s.accountLocked(user.AccountID, nil)
	}
	s.mu.Unlock()

	if taken {
		return libHTTP.RespondError(c, fiber.StatusConflict, constant.CodeDuplicateID, "user already registered")
	}

	token, err := s.IssueToken(user.AccountID)
	if err != nil {
		return err
	}

	return libHTTP.Respond(c, fiber.StatusCreated, remote.RegisterResponse{Token: token})
}

func (s *Simulator) user(email string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[normalizeEmail(email)]

	return u, ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// authenticate rejects requests without a valid bearer token and stores the
// token subject as the account of the request.
func (s *Simulator) authenticate(c *fiber.Ctx) error {
	token := libHTTP.ExtractTokenFromHeader(c)
	if token == "" {
		return libHTTP.Unauthorized(c, "missing token")
	}

	accountID, err := s.verify(token)
	if err != nil {
		return libHTTP.Unauthorized(c, "invalid token")
	}

	if !s.hasAccount(accountID) {
		return libHTTP.NotFound(c, "user not found")
	}

	c.Locals(localAccountID, accountID)

	return c.Next()
}

func accountOf(c *fiber.Ctx) string {
	id, _ := c.Locals(localAccountID).(string)

	return id
}
