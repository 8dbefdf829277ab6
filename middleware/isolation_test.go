package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/response"

	"github.com/gofiber/fiber/v3"
)

func newIsolationApp(cfg *IsolationConfig) *fiber.App {
	app := fiber.New()
	app.Use(NewIsolationExtractor(cfg, logger.NewNop()).Extract())
	app.Get("/scope", func(c fiber.Ctx) error {
		ic, ok := IsolationFromFiber(c)
		if !ok {
			return response.InternalError(c, "no isolation context")
		}
		return response.OkWithData(c, map[string]string{
			"level":     ic.Level().String(),
			"tenant_id": ic.TenantID().String(),
		})
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, headers map[string]string) (*fiber.App, int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/scope", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return app, resp.StatusCode, body.Data
}

func TestIsolationExtractorFullChain(t *testing.T) {
	app := newIsolationApp(nil)
	_, status, data := doRequest(t, app, map[string]string{
		isolation.HeaderTenantID:       "t1",
		isolation.HeaderOrganizationID: "o1",
		isolation.HeaderDepartmentID:   "d1",
	})

	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if data["level"] != "DEPARTMENT" {
		t.Errorf("level = %q, want DEPARTMENT", data["level"])
	}
	if data["tenant_id"] != "t1" {
		t.Errorf("tenant_id = %q, want t1", data["tenant_id"])
	}
}

func TestIsolationExtractorNoHeaders(t *testing.T) {
	app := newIsolationApp(nil)
	_, status, data := doRequest(t, app, nil)

	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if data["level"] != "PLATFORM" {
		t.Errorf("level = %q, want PLATFORM", data["level"])
	}
}

func TestIsolationExtractorInvalidChainDegrades(t *testing.T) {
	// 默认策略: 组织缺少租户 -> 降级为平台级上下文
	app := newIsolationApp(nil)
	_, status, data := doRequest(t, app, map[string]string{
		isolation.HeaderOrganizationID: "o1",
	})

	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if data["level"] != "PLATFORM" {
		t.Errorf("level = %q, want PLATFORM after degrade", data["level"])
	}
}

func TestIsolationExtractorInvalidChainRejects(t *testing.T) {
	app := newIsolationApp(&IsolationConfig{Policy: FallbackReject})
	_, status, _ := doRequest(t, app, map[string]string{
		isolation.HeaderOrganizationID: "o1",
	})

	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestIsolationExtractorUUIDValidation(t *testing.T) {
	app := newIsolationApp(&IsolationConfig{Policy: FallbackReject, ValidateUUID: true})

	_, status, _ := doRequest(t, app, map[string]string{
		isolation.HeaderTenantID: "not-a-uuid",
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for non-UUID tenant", status)
	}

	_, status, data := doRequest(t, app, map[string]string{
		isolation.HeaderTenantID: "3f1d9c2e-8b4a-4d6f-9e2a-1c5b7d8e9f0a",
	})
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for UUID tenant", status)
	}
	if data["level"] != "TENANT" {
		t.Errorf("level = %q, want TENANT", data["level"])
	}
}

func TestIsolationExtractorRequestID(t *testing.T) {
	app := newIsolationApp(nil)

	req := httptest.NewRequest("GET", "/scope", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(isolation.HeaderRequestID) == "" {
		t.Error("request id header should be generated when absent")
	}

	req = httptest.NewRequest("GET", "/scope", nil)
	req.Header.Set(isolation.HeaderRequestID, "req-123")
	resp, err = app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(isolation.HeaderRequestID); got != "req-123" {
		t.Errorf("request id = %q, want req-123 passthrough", got)
	}
}

func TestRequireTenant(t *testing.T) {
	app := fiber.New()
	app.Use(NewIsolationExtractor(nil, logger.NewNop()).Extract())
	app.Use(RequireTenant())
	app.Get("/scope", func(c fiber.Ctx) error {
		return response.Ok(c)
	})

	req := httptest.NewRequest("GET", "/scope", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without tenant", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/scope", nil)
	req.Header.Set(isolation.HeaderTenantID, "t1")
	resp, err = app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 with tenant", resp.StatusCode)
	}
}
