package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jose254W/cards/wallet"
	"github.com/jose254W/cards/wallet/runtime"
)

// WithRecover turns a handler panic into a 500 after running the runtime
// panic pipeline under component.
func WithRecover(component string) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				ctx := c.UserContext()
				runtime.HandlePanicValue(ctx, wallet.NewLoggerFromContext(ctx), recovered, component, c.Route().Path)

				err = RespondError(c, fiber.StatusInternalServerError, "", "internal server error")
			}
		}()

		return c.Next()
	}
}
