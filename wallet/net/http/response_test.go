//go:build unit

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestRespond_InvalidStatus(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return Respond(c, -1, fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantCode   string
	}{
		{"error response", NewError(http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "insufficient funds"), 422, "insufficient funds", "INSUFFICIENT_FUNDS"},
		{"empty message", NewError(http.StatusNotFound, "", ""), 404, "Not Found", ""},
		{"fiber error", fiber.NewError(http.StatusMethodNotAllowed, "nope"), 405, "nope", ""},
		{"unknown", errors.New("db exploded"), 500, "internal server error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return RenderError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer func() { require.NoError(t, resp.Body.Close()) }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeError(t, resp)
			assert.Equal(t, tt.wantMsg, body.Msg)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestFiberErrorHandler(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
	app.Get("/rejected", func(*fiber.Ctx) error {
		return NewError(http.StatusBadRequest, "WLT-0001", "amount must be positive")
	})
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/rejected", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "WLT-0001", decodeError(t, resp).Code)
	require.NoError(t, resp.Body.Close())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", decodeError(t, resp).Msg)
	require.NoError(t, resp.Body.Close())
}
