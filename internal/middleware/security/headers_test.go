package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, cfg HeadersConfig) map[string]string {
	t.Helper()
	app := fiber.New()
	app.Use(HeadersMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return headers
}

func TestHeadersProduction(t *testing.T) {
	h := get(t, HeadersConfig{AllowedOrigins: []string{"https://voice.example.org"}})

	assert.Equal(t, "DENY", h["X-Frame-Options"])
	assert.Equal(t, "nosniff", h["X-Content-Type-Options"])
	assert.Equal(t, "strict-origin-when-cross-origin", h["Referrer-Policy"])
	assert.Contains(t, h["Strict-Transport-Security"], "max-age=31536000")
	assert.Contains(t, h["Content-Security-Policy"], "connect-src 'self' https://voice.example.org;")
	assert.Contains(t, h["Content-Security-Policy"], "frame-ancestors 'none'")
}

func TestHeadersDevelopment(t *testing.T) {
	h := get(t, HeadersConfig{IsDevelopment: true})

	assert.NotContains(t, h, "Strict-Transport-Security")
	assert.Contains(t, h["Content-Security-Policy"], "connect-src 'self';")
}
