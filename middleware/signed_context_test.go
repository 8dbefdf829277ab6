package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/response"

	"github.com/gofiber/fiber/v3"
)

func mustIsolationCtx(ic *isolation.Context, err error) *isolation.Context {
	if err != nil {
		panic(err)
	}
	return ic
}

func TestContextSignerRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := NewContextSigner(&ContextSignerConfig{
		Enabled: true,
		Secret:  "s3cret",
		Issuer:  "gateway",
		NowFunc: func() time.Time { return now },
	})

	ic := mustIsolationCtx(isolation.Department("t1", "o1", "d1"))
	values, err := signer.Sign(ic)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if values.Signature == "" || values.Nonce == "" {
		t.Fatal("signature and nonce must be set")
	}
	if values.TenantID != "t1" || values.DepartmentID != "d1" {
		t.Fatalf("identifiers not carried: %+v", values)
	}

	verifier := NewContextVerifier(&ContextVerifierConfig{
		Enabled: true,
		Secret:  "s3cret",
		NowFunc: func() time.Time { return now },
	}, logger.NewNop())
	if err := verifier.Verify(values); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestContextVerifierTamperedTenant(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := NewContextSigner(&ContextSignerConfig{
		Enabled: true,
		Secret:  "s3cret",
		Issuer:  "gateway",
		NowFunc: func() time.Time { return now },
	})

	ic := mustIsolationCtx(isolation.Tenant("t1"))
	values, err := signer.Sign(ic)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// 伪造租户标识必须导致签名失配
	values.TenantID = "t2"

	verifier := NewContextVerifier(&ContextVerifierConfig{
		Enabled: true,
		Secret:  "s3cret",
		NowFunc: func() time.Time { return now },
	}, logger.NewNop())
	if err := verifier.Verify(values); !errors.Is(err, ErrSignedContextInvalidSign) {
		t.Fatalf("Verify err = %v, want ErrSignedContextInvalidSign", err)
	}
}

func TestContextVerifierExpiry(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	signer := NewContextSigner(&ContextSignerConfig{
		Enabled: true,
		Secret:  "s3cret",
		Issuer:  "gateway",
		NowFunc: func() time.Time { return issued },
	})
	values, err := signer.Sign(isolation.Platform())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier := NewContextVerifier(&ContextVerifierConfig{
		Enabled: true,
		Secret:  "s3cret",
		MaxAge:  time.Minute,
		NowFunc: func() time.Time { return issued.Add(2 * time.Minute) },
	}, logger.NewNop())
	if err := verifier.Verify(values); !errors.Is(err, ErrSignedContextExpired) {
		t.Fatalf("Verify err = %v, want ErrSignedContextExpired", err)
	}
}

func TestContextVerifierIssuerAllowList(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := NewContextSigner(&ContextSignerConfig{
		Enabled: true,
		Secret:  "s3cret",
		Issuer:  "rogue",
		NowFunc: func() time.Time { return now },
	})
	values, err := signer.Sign(isolation.Platform())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier := NewContextVerifier(&ContextVerifierConfig{
		Enabled:        true,
		Secret:         "s3cret",
		AllowedIssuers: []string{"gateway"},
		NowFunc:        func() time.Time { return now },
	}, logger.NewNop())
	if err := verifier.Verify(values); !errors.Is(err, ErrSignedContextIssuerNotAllowed) {
		t.Fatalf("Verify err = %v, want ErrSignedContextIssuerNotAllowed", err)
	}
}

func TestContextVerifierMiddlewareChain(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := NewContextSigner(&ContextSignerConfig{
		Enabled: true,
		Secret:  "s3cret",
		Issuer:  "gateway",
		NowFunc: func() time.Time { return now },
	})
	ic := mustIsolationCtx(isolation.Organization("t1", "o1"))
	values, err := signer.Sign(ic)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	app := fiber.New()
	verifier := NewContextVerifier(&ContextVerifierConfig{
		Enabled: true,
		Secret:  "s3cret",
		NowFunc: func() time.Time { return now },
	}, logger.NewNop())
	app.Use(verifier.Authenticate())
	app.Use(NewIsolationExtractor(nil, logger.NewNop()).Extract())
	app.Get("/scope", func(c fiber.Ctx) error {
		got, ok := IsolationFromFiber(c)
		if !ok || !got.IsOrganizationLevel() {
			return response.InternalError(c, "wrong scope")
		}
		return response.Ok(c)
	})

	req := httptest.NewRequest("GET", "/scope", nil)
	for k, v := range values.ToMap() {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// 缺少签名头被拒绝
	req = httptest.NewRequest("GET", "/scope", nil)
	req.Header.Set(isolation.HeaderTenantID, "t1")
	resp, err = app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without signature", resp.StatusCode)
	}
}

func TestSignerDisabled(t *testing.T) {
	signer := NewContextSigner(&ContextSignerConfig{Enabled: false})
	values, err := signer.Sign(isolation.Platform())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if values.Signature != "" {
		t.Fatal("disabled signer must return empty values")
	}
}
