package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jose254W/cards/wallet"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
	"go.opentelemetry.io/otel/trace"
)

// Ping returns HTTP Status 200 with response "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Version returns HTTP Status 200 with the given version.
func Version(version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return Respond(c, fiber.StatusOK, fiber.Map{"version": version})
	}
}

// ExtractTokenFromHeader returns the bearer token of the Authorization
// header. A header without scheme is returned as the token.
func ExtractTokenFromHeader(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		return ""
	}

	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, constant.Bearer) {
		return strings.TrimSpace(token)
	}

	if found {
		return ""
	}

	return header
}

// FiberErrorHandler renders handler errors as ErrorResponse bodies. Errors
// that are not an ErrorResponse or fiber.Error are logged and reported as 500.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		resp     ErrorResponse
		fiberErr *fiber.Error
	)

	if !errors.As(err, &resp) && !errors.As(err, &fiberErr) {
		span := trace.SpanFromContext(ctx)
		libOpentelemetry.HandleSpanError(&span, "handler error", err)

		wallet.NewLoggerFromContext(ctx).Log(ctx, log.LevelError, "handler error",
			log.String("method", c.Method()),
			log.String("path", c.Path()),
			log.Err(err),
		)
	}

	return RenderError(c, err)
}
