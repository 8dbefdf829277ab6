package isolation

import (
	"testing"

	"github.com/hl8/hl8-go-pkg/errors"
)

func TestNewIDTrimsAndValidates(t *testing.T) {
	id, err := NewTenantID("  t1  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "t1" {
		t.Fatalf("expected trimmed value, got %q", id.String())
	}

	if _, err := NewTenantID("   "); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got: %v", err)
	}
	if _, err := NewOrganizationID(""); err == nil {
		t.Fatalf("expected error for empty organization id")
	}
	if _, err := NewDepartmentID(""); err == nil {
		t.Fatalf("expected error for empty department id")
	}
	if _, err := NewUserID(""); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestIDErrorNamesField(t *testing.T) {
	_, err := NewUserID("")
	bizErr, ok := errors.AsBizError(err)
	if !ok {
		t.Fatalf("expected biz error, got: %v", err)
	}
	if bizErr.Details["field"] != "user_id" {
		t.Fatalf("unexpected details: %v", bizErr.Details)
	}
}

func TestIDZeroValue(t *testing.T) {
	var id TenantID
	if !id.IsZero() {
		t.Fatalf("zero value should be zero")
	}
	id, _ = NewTenantID("t1")
	if id.IsZero() {
		t.Fatalf("populated id should not be zero")
	}
}
