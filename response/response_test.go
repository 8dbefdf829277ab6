package response

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	hl8errors "github.com/hl8/hl8-go-pkg/errors"
	"github.com/gofiber/fiber/v3"
)

func TestError_BizError(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/err", func(c fiber.Ctx) error {
		return Error(c, hl8errors.New(hl8errors.ErrCodeInvalidArgument, "bad request"))
	})

	req := httptest.NewRequest("GET", "/err", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", resp.StatusCode, fiber.StatusBadRequest)
	}

	var got Result
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Code != int(hl8errors.ErrCodeInvalidArgument) {
		t.Fatalf("unexpected code: got=%d want=%d", got.Code, int(hl8errors.ErrCodeInvalidArgument))
	}
	if got.Msg != "bad request" {
		t.Fatalf("unexpected msg: got=%q want=%q", got.Msg, "bad request")
	}
}

func TestError_IsolationError(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/err", func(c fiber.Ctx) error {
		return Error(c, hl8errors.ErrInvalidTenantContext.WithDetail("missing", "tenant_id"))
	})

	req := httptest.NewRequest("GET", "/err", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", resp.StatusCode, fiber.StatusBadRequest)
	}

	var got Result
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Reason != "INVALID_TENANT_CONTEXT" {
		t.Fatalf("unexpected reason: got=%q", got.Reason)
	}
	if got.Details["missing"] != "tenant_id" {
		t.Fatalf("unexpected details: got=%v", got.Details)
	}
}

func TestError_PlainError(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/err", func(c fiber.Ctx) error {
		return ErrorWithMsg(c, "boom")
	})

	req := httptest.NewRequest("GET", "/err", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("unexpected status: got=%d", resp.StatusCode)
	}
}

func TestOkWithData(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/ok", func(c fiber.Ctx) error {
		return OkWithData(c, map[string]string{"hello": "world"})
	})

	req := httptest.NewRequest("GET", "/ok", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var got Result
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, ok := got.Data.(map[string]interface{})
	if !ok || data["hello"] != "world" {
		t.Fatalf("unexpected data: %v", got.Data)
	}
}

func TestPageData(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/page", func(c fiber.Ctx) error {
		return PageData(c, []string{"a", "b"}, 10, 1, 2)
	})

	req := httptest.NewRequest("GET", "/page", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var got struct {
		Data PageResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Data.Total != 10 || got.Data.Page != 1 || got.Data.PageSize != 2 {
		t.Fatalf("unexpected page meta: %+v", got.Data)
	}
}
