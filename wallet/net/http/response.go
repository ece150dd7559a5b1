package http

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the error body of the payments service.
type ErrorResponse struct {
	Status int    `json:"-"`
	Msg    string `json:"msg"`
	Code   string `json:"code,omitempty"`
}

// Error allows ErrorResponse to be returned from handlers.
func (e ErrorResponse) Error() string {
	return e.Msg
}

// NewError returns an ErrorResponse for status.
func NewError(status int, code, msg string) ErrorResponse {
	return ErrorResponse{Status: status, Code: code, Msg: msg}
}

// Respond writes body as JSON. Status codes outside 100..599 become 500.
func Respond(c *fiber.Ctx, status int, body any) error {
	if status < http.StatusContinue || status > 599 {
		status = http.StatusInternalServerError
	}

	return c.Status(status).JSON(body)
}

// RespondError writes an ErrorResponse. An empty msg falls back to the status text.
func RespondError(c *fiber.Ctx, status int, code, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}

	return Respond(c, status, ErrorResponse{Msg: msg, Code: code})
}

// RenderError writes err through the ErrorResponse contract. Unknown errors
// are reported as a generic 500.
func RenderError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	var resp ErrorResponse
	if errors.As(err, &resp) {
		return RespondError(c, resp.Status, resp.Code, resp.Msg)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return RespondError(c, fiberErr.Code, "", fiberErr.Message)
	}

	return RespondError(c, fiber.StatusInternalServerError, "", "internal server error")
}

// BadRequest writes a 400.
func BadRequest(c *fiber.Ctx, code, msg string) error {
	return RespondError(c, fiber.StatusBadRequest, code, msg)
}

// Unauthorized writes a 401.
func Unauthorized(c *fiber.Ctx, msg string) error {
	return RespondError(c, fiber.StatusUnauthorized, "", msg)
}

// NotFound writes a 404.
func NotFound(c *fiber.Ctx, msg string) error {
	return RespondError(c, fiber.StatusNotFound, "", msg)
}

// ServiceUnavailable writes a 503 with a generic message.
func ServiceUnavailable(c *fiber.Ctx) error {
	return RespondError(c, fiber.StatusServiceUnavailable, "", "service unavailable")
}
