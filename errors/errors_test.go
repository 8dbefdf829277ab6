package errors

import (
	errorspkg "errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func resetHTTPOverrides() {
	httpStatusMu.Lock()
	defer httpStatusMu.Unlock()
	httpStatusOverrides = make(map[ErrorCode]int)
	httpStatusResolverFn = nil
}

func TestBizErrorIsAndUnwrap(t *testing.T) {
	cause := errorspkg.New("root")
	err := Wrap(ErrCodeNotFound, "missing", cause)

	if !Is(err, ErrNotFound) {
		t.Fatalf("expected Is to match ErrNotFound")
	}
	if !errorspkg.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}
}

func TestReason(t *testing.T) {
	if got := Reason(ErrCodeInvalidOrganizationContext); got != "INVALID_ORGANIZATION_CONTEXT" {
		t.Fatalf("unexpected reason: %q", got)
	}
	if got := Reason(ErrorCode(9999)); got != "UNKNOWN" {
		t.Fatalf("unexpected reason for unmapped code: %q", got)
	}
	if got := ErrInvalidDepartmentContext.Reason(); got != "INVALID_DEPARTMENT_CONTEXT" {
		t.Fatalf("unexpected reason on error: %q", got)
	}
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	err := ErrInvalidOrganizationContext.WithDetail("organizationId", "o1")

	if len(ErrInvalidOrganizationContext.Details) != 0 {
		t.Fatalf("sentinel error mutated")
	}
	if err.Details["organizationId"] != "o1" {
		t.Fatalf("detail not attached: %v", err.Details)
	}
	if !Is(err, ErrInvalidOrganizationContext) {
		t.Fatalf("detail copy should still match sentinel")
	}
}

func TestIsIsolationError(t *testing.T) {
	if !IsIsolationError(ErrInvalidTenantContext) {
		t.Fatalf("expected isolation error")
	}
	if IsIsolationError(ErrNotFound) {
		t.Fatalf("did not expect isolation error")
	}
}

func TestToGRPCError(t *testing.T) {
	err := New(ErrCodeInvalidArgument, "bad")
	grpcErr := ToGRPCError(err)
	st, ok := status.FromError(grpcErr)
	if !ok {
		t.Fatalf("expected grpc status")
	}
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("unexpected grpc code: %v", st.Code())
	}

	grpcErr = ToGRPCError(ErrIsolationAccessDenied)
	st, _ = status.FromError(grpcErr)
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("unexpected grpc code for access denied: %v", st.Code())
	}
}

func TestFromGRPCError(t *testing.T) {
	grpcErr := status.Error(codes.NotFound, "missing")
	bizErr := FromGRPCError(grpcErr)
	if bizErr == nil {
		t.Fatalf("expected biz error")
	}
	if bizErr.Code != ErrCodeNotFound {
		t.Fatalf("unexpected code: %v", bizErr.Code)
	}
	if bizErr.Message != "missing" {
		t.Fatalf("unexpected message: %q", bizErr.Message)
	}
}

func TestToHTTPResponse(t *testing.T) {
	resetHTTPOverrides()
	defer resetHTTPOverrides()

	statusCode, body := ToHTTPResponse(nil)
	if statusCode != 200 {
		t.Fatalf("unexpected status for nil error: %d", statusCode)
	}
	if body["code"].(int) != 0 {
		t.Fatalf("unexpected code for nil error: %v", body["code"])
	}

	statusCode, body = ToHTTPResponse(ErrIsolationAccessDenied.WithDetail("tenantId", "t1"))
	if statusCode != 403 {
		t.Fatalf("unexpected status: %d", statusCode)
	}
	if body["reason"].(string) != "ISOLATION_ACCESS_DENIED" {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
	details := body["details"].(map[string]any)
	if details["tenantId"] != "t1" {
		t.Fatalf("unexpected details: %v", details)
	}

	RegisterHTTPStatus(ErrCodeNotFound, 410)
	statusCode, _ = ToHTTPResponse(New(ErrCodeNotFound, "gone"))
	if statusCode != 410 {
		t.Fatalf("expected override status, got: %d", statusCode)
	}
}
