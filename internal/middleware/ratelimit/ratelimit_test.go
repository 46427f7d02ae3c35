package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMiddlewareLimitsPerClient(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func(client string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client-ID", client)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusOK, do("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("a"))
	assert.Equal(t, fiber.StatusOK, do("b"))
}

func TestBucketRefills(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("k"))
	assert.False(t, rl.allow("k"))

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("k"))
}

func TestEvictIdle(t *testing.T) {
	rl := New(Config{})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.allow("k")

	now = now.Add(11 * time.Minute)
	rl.evictIdle(10 * time.Minute)

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.buckets)
}

func TestStopEndsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := New(Config{})
	rl.Stop()
	rl.Stop()
}
