package validator

import (
	"testing"
	"time"

	pv "github.com/go-playground/validator/v10"
)

func TestValidateAllowsStructValueInput(t *testing.T) {
	t.Parallel()

	type Inner struct {
		Email string `validate:"required,email" error_msg:"required:email required|email:email invalid"`
	}
	type Req struct {
		Inner Inner
		When  time.Time
	}

	v := New()

	if err := v.Validate(Req{}); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestValidateCustomMessages(t *testing.T) {
	t.Parallel()

	type Req struct {
		Email string `validate:"required,email" error_msg:"required:email required|email:email invalid"`
	}

	v := New()

	err := v.Validate(&Req{Email: "not-an-email"})
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	msgs := ve.Get("Email")
	if len(msgs) != 1 || msgs[0] != "email invalid" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestValidateIsolationIDRule(t *testing.T) {
	t.Parallel()

	type Req struct {
		TenantID string `validate:"required,isolation_id" error_msg:"isolation_id:tenant id invalid"`
	}

	v := New()

	valid := []string{
		"tenant-001",
		"01HZXW8Y4N4F1Q2R3S4T5V6W7X",
		"550e8400-e29b-41d4-a716-446655440000",
		"acme_corp",
	}
	for _, id := range valid {
		if err := v.Validate(&Req{TenantID: id}); err != nil {
			t.Fatalf("id %q rejected: %v", id, err)
		}
	}

	invalid := []string{
		"tenant 001",
		"tenant/001",
		"租户一",
	}
	for _, id := range invalid {
		err := v.Validate(&Req{TenantID: id})
		if err == nil {
			t.Fatalf("id %q accepted", id)
		}
		ve := err.(*ValidationError)
		if msgs := ve.Get("TenantID"); len(msgs) != 1 || msgs[0] != "tenant id invalid" {
			t.Fatalf("id %q: unexpected messages %v", id, msgs)
		}
	}
}

func TestValidateNestedPointer(t *testing.T) {
	t.Parallel()

	type Scope struct {
		OrganizationID string `validate:"required" error_msg:"required:organization required"`
	}
	type Req struct {
		Scope *Scope
	}

	v := New()

	// nil 指针跳过
	if err := v.Validate(&Req{}); err != nil {
		t.Fatalf("nil nested pointer should be skipped: %v", err)
	}

	err := v.Validate(&Req{Scope: &Scope{}})
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	ve := err.(*ValidationError)
	if msgs := ve.Get("Scope.OrganizationID"); len(msgs) != 1 || msgs[0] != "organization required" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestRegisterRule(t *testing.T) {
	t.Parallel()

	type Req struct {
		Code string `validate:"even_len" error_msg:"even_len:code length must be even"`
	}

	v := New()
	err := v.RegisterRule("even_len", func(fl pv.FieldLevel) bool {
		return len(fl.Field().String())%2 == 0
	})
	if err != nil {
		t.Fatalf("register rule: %v", err)
	}

	if err := v.Validate(&Req{Code: "ab"}); err != nil {
		t.Fatalf("even code rejected: %v", err)
	}
	err = v.Validate(&Req{Code: "abc"})
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	ve := err.(*ValidationError)
	if msgs := ve.Get("Code"); len(msgs) != 1 || msgs[0] != "code length must be even" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}
