package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"

	"github.com/gofiber/fiber/v3"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func withTestLimiter(t *testing.T, limit int64, period time.Duration) {
	t.Helper()
	prev := SetRateLimiter(limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: limit}))
	t.Cleanup(func() { SetRateLimiter(prev) })
}

func TestRateLimitPerTenant(t *testing.T) {
	withTestLimiter(t, 2, time.Minute)

	app := fiber.New()
	app.Use(NewIsolationExtractor(nil, logger.NewNop()).Extract())
	app.Use(RateLimitMiddleware())
	app.Get("/ping", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	send := func(tenant string) int {
		req := httptest.NewRequest("GET", "/ping", nil)
		if tenant != "" {
			req.Header.Set(isolation.HeaderTenantID, tenant)
		}
		resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	// 租户 t1 用满配额
	if code := send("t1"); code != fiber.StatusOK {
		t.Fatalf("first t1 request: %d", code)
	}
	if code := send("t1"); code != fiber.StatusOK {
		t.Fatalf("second t1 request: %d", code)
	}
	if code := send("t1"); code != fiber.StatusTooManyRequests {
		t.Fatalf("third t1 request = %d, want 429", code)
	}

	// 其他租户不受影响
	if code := send("t2"); code != fiber.StatusOK {
		t.Fatalf("t2 request = %d, want 200", code)
	}
}

func TestRateLimitCustomKeyFunc(t *testing.T) {
	withTestLimiter(t, 1, time.Minute)

	prev := SetRateLimitKeyFunc(func(c fiber.Ctx) string {
		return "static"
	})
	t.Cleanup(func() { SetRateLimitKeyFunc(prev) })

	app := fiber.New()
	app.Use(RateLimitMiddleware())
	app.Get("/ping", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("first request = %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/ping", nil)
	resp, err = app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", resp.StatusCode)
	}
}
