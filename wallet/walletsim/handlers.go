package walletsim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jose254W/cards/wallet"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/money"
	libHTTP "github.com/jose254W/cards/wallet/net/http"
	"github.com/jose254W/cards/wallet/record"
	"github.com/jose254W/cards/wallet/remote"
)

// Error codes of business rejections.
const (
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeUnknownMerchant   = "UNKNOWN_MERCHANT"
)

func (s *Simulator) transactions(c *fiber.Ctx) error {
	history := s.History(accountOf(c))

	body := struct {
		Transactions []remote.TransactionDTO `json:"transactions"`
	}{Transactions: make([]remote.TransactionDTO, 0, len(history))}

	for _, r := range history {
		body.Transactions = append(body.Transactions, remote.FromRecord(r))
	}

	return libHTTP.Respond(c, fiber.StatusOK, body)
}

func (s *Simulator) balance(c *fiber.Ctx) error {
	accountID := accountOf(c)

	return libHTTP.Respond(c, fiber.StatusOK, remote.BalanceDTO{
		SmartPayBalance:      s.Balance(accountID, money.SmartPay).Major(),
		LocalCurrencyBalance: s.Balance(accountID, money.LocalCurrency).Major(),
	})
}

// submit handles one operation kind. Responses other than 5xx are stored
// under the Idempotency-Key and replayed for repeated keys.
func (s *Simulator) submit(kind record.Type) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(constant.IdempotencyKey))

		var body remote.SubmitBody
		parseErr := c.BodyParser(&body)

		s.mu.Lock()
		defer s.mu.Unlock()

		acc := s.accountLocked(accountOf(c), nil)

		if prev, ok := acc.replies[key]; ok && key != "" {
			c.Set(constant.IdempotencyReplayed, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

			return c.Status(prev.status).Send(prev.body)
		}

		status, resp := reject(fiber.StatusBadRequest, constant.CodeValidation, "malformed body")
		if parseErr == nil {
			status, resp = s.apply(acc, kind, body)
		}

		raw, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode %s response: %w", kind, err)
		}

		if key != "" && status < fiber.StatusInternalServerError {
			acc.replies[key] = reply{status: status, body: raw}
		}

		logger := wallet.NewLoggerFromContext(c.UserContext())
		logger.Log(c.UserContext(), log.LevelDebug, "simulated submission",
			log.String("kind", string(kind)),
			log.Int("status", status),
			log.String("idempotency_key", key),
		)

		c.Set(constant.IdempotencyReplayed, "false")
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		return c.Status(status).Send(raw)
	}
}

// apply validates body and books it on acc. It runs under s.mu.
func (s *Simulator) apply(acc *account, kind record.Type, body remote.SubmitBody) (int, any) {
	currency, err := money.ParseCurrency(body.Currency)
	if err != nil {
		return reject(fiber.StatusBadRequest, constant.CodeValidation, "unknown currency")
	}

	amount, err := money.FromMajor(body.Amount.String(), currency)
	if err != nil || !amount.IsPositive() {
		return reject(fiber.StatusBadRequest, constant.CodeValidation, "amount must be a positive number")
	}

	counterparty := ""

	switch kind {
	case record.TypePay:
		counterparty = strings.TrimSpace(body.MerchantID)
		if counterparty == "" {
			return reject(fiber.StatusBadRequest, constant.CodeValidation, "merchantId is required")
		}

		if _, ok := s.merchants[counterparty]; len(s.merchants) > 0 && !ok {
			return reject(fiber.StatusUnprocessableEntity, CodeUnknownMerchant, "unknown merchant")
		}
	case record.TypeTransfer:
		counterparty = strings.TrimSpace(body.Recipient)

		recipientType := wallet.RecipientType(strings.ToLower(strings.TrimSpace(body.RecipientType)))
		if !recipientType.Valid() || counterparty == "" {
			return reject(fiber.StatusBadRequest, constant.CodeValidation, "recipientType and recipient are required")
		}

		if recipientType == wallet.RecipientBank && strings.TrimSpace(body.AccountNumber) == "" {
			return reject(fiber.StatusBadRequest, constant.CodeValidation, "accountNumber is required for bank transfers")
		}
	}

	direction := record.DefaultDirection(kind)

	next, err := move(acc.balances[currency], amount, direction)
	if err != nil {
		return reject(fiber.StatusBadRequest, constant.CodeAmountOverflow, "amount out of range")
	}

	if next.IsNegative() {
		return reject(fiber.StatusUnprocessableEntity, CodeInsufficientFunds, "insufficient funds")
	}

	ts := body.Timestamp
	if ts <= 0 {
		ts = s.cfg.Clock().UnixMilli()
	}

	r := record.Record{
		ID:           uuid.NewString(),
		Type:         kind,
		Direction:    direction,
		Money:        amount,
		Status:       record.StatusConfirmed,
		Timestamp:    ts,
		Counterparty: counterparty,
		Note:         strings.TrimSpace(body.Note),
	}

	acc.balances[currency] = next
	acc.history = append(acc.history, r)

	if kind == record.TypeTransfer {
		s.credit(acc.id, counterparty, r)
	}

	dto := remote.FromRecord(r)

	return fiber.StatusCreated, remote.SubmitResponse{
		Msg:         strings.ToLower(string(kind)) + " successful",
		Transaction: &dto,
	}
}

// credit books an incoming transfer when recipient is a simulator user.
func (s *Simulator) credit(senderID, recipient string, out record.Record) {
	target := ""

	if u, ok := s.users[strings.ToLower(recipient)]; ok {
		target = u.AccountID
	} else if _, ok := s.accounts[recipient]; ok {
		target = recipient
	}

	if target == "" || target == senderID {
		return
	}

	acc := s.accounts[target]

	next, err := money.Add(acc.balances[out.Money.Currency], out.Money)
	if err != nil {
		return
	}

	in := out
	in.ID = uuid.NewString()
	in.Direction = record.DirectionIn
	in.Counterparty = senderID

	acc.balances[out.Money.Currency] = next
	acc.history = append(acc.history, in)
}

func move(balance, amount money.Money, direction record.Direction) (money.Money, error) {
	if direction == record.DirectionIn {
		return money.Add(balance, amount)
	}

	return money.Subtract(balance, amount)
}

func reject(status int, code, msg string) (int, any) {
	return status, libHTTP.ErrorResponse{Msg: msg, Code: code}
}
