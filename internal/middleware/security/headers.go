package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets the response security headers. connect-src also
// lists the allowed origins so browser voice clients can open /ws/voice.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	connectSrc := strings.TrimSpace("'self' " + strings.Join(cfg.AllowedOrigins, " "))
	csp := strings.Join([]string{
		"default-src 'self'",
		"img-src 'self' data:",
		"connect-src " + connectSrc,
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}, "; ")

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "camera=(), geolocation=()")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}
