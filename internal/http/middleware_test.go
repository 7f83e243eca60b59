package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"paxth/internal/config"
)

// unreachableRedis returns a client whose commands fail fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// Test that a zero limit disables the rate limiter without touching Redis.
func TestRateLimitMiddleware_Disabled(t *testing.T) {
	cfg := &config.Config{}

	app := fiber.New()
	app.Use(rateLimitMiddleware(cfg, unreachableRedis(t)))
	app.Get("/limited", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with rate limiting disabled, got %d", resp.StatusCode)
	}
}

// Test that a Redis failure surfaces as an internal error instead of
// silently letting the request through.
func TestRateLimitMiddleware_RedisUnavailable(t *testing.T) {
	cfg := &config.Config{}
	cfg.RateLimit.PerMinute = 5

	app := fiber.New()
	app.Use(rateLimitMiddleware(cfg, unreachableRedis(t)))
	app.Get("/limited", func(c *fiber.Ctx) error {
		t.Fatalf("handler must not run when the limiter cannot count")
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 when redis is unreachable, got %d", resp.StatusCode)
	}
}
