//go:build unit

package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTokenFromHeader(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                 "",
		"Bearer abc":       "abc",
		"bearer   abc ":    "abc",
		"raw-token":        "raw-token",
		"Basic dXNlcjpwdw": "",
	}

	for header, want := range tests {
		app := fiber.New()

		var got string

		app.Get("/", func(c *fiber.Ctx) error {
			got = ExtractTokenFromHeader(c)
			return c.SendStatus(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}

		resp, err := app.Test(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, want, got, header)
	}
}

func TestPingAndVersion(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/ping", Ping)
	app.Get("/version", Version("1.2.3"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "pong", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/version", nil))
	require.NoError(t, err)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.JSONEq(t, `{"version":"1.2.3"}`, string(body))
}
