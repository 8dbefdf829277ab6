package isolation

import (
	"context"
)

// Conventional header / metadata / message-property names carrying the
// isolation identifiers across process boundaries.
const (
	HeaderTenantID       = "x-tenant-id"
	HeaderOrganizationID = "x-organization-id"
	HeaderDepartmentID   = "x-department-id"
	HeaderUserID         = "x-user-id"
	HeaderRequestID      = "x-request-id"
)

type ctxKey struct{}

// WithContext returns a derived context.Context carrying ic. This is the
// request-scoped propagation mechanism: middleware stores the context once,
// downstream collaborators (cache, logger, repository) read it back without
// explicit parameter threading.
func WithContext(ctx context.Context, ic *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ic)
}

// FromContext reads the isolation context back, reporting whether one was
// stored.
func FromContext(ctx context.Context) (*Context, bool) {
	ic, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || ic == nil {
		return nil, false
	}
	return ic, true
}

// ClearContext returns a derived context.Context with the isolation context
// explicitly removed.
func ClearContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, (*Context)(nil))
}

// MustFromContext returns the stored isolation context, falling back to the
// platform context when none is stored. Callers that must distinguish
// "absent" from "platform" use FromContext.
func MustFromContext(ctx context.Context) *Context {
	if ic, ok := FromContext(ctx); ok {
		return ic
	}
	return Platform()
}

// TenantIDFromContext returns the current tenant identifier, if any.
func TenantIDFromContext(ctx context.Context) (TenantID, bool) {
	ic, ok := FromContext(ctx)
	if !ok || !ic.HasTenant() {
		return "", false
	}
	return ic.TenantID(), true
}

// OrganizationIDFromContext returns the current organization identifier, if
// any.
func OrganizationIDFromContext(ctx context.Context) (OrganizationID, bool) {
	ic, ok := FromContext(ctx)
	if !ok || !ic.HasOrganization() {
		return "", false
	}
	return ic.OrganizationID(), true
}

// DepartmentIDFromContext returns the current department identifier, if any.
func DepartmentIDFromContext(ctx context.Context) (DepartmentID, bool) {
	ic, ok := FromContext(ctx)
	if !ok || !ic.HasDepartment() {
		return "", false
	}
	return ic.DepartmentID(), true
}

// UserIDFromContext returns the current user identifier, if any.
func UserIDFromContext(ctx context.Context) (UserID, bool) {
	ic, ok := FromContext(ctx)
	if !ok || !ic.HasUser() {
		return "", false
	}
	return ic.UserID(), true
}

// HasTenant reports whether the current isolation context carries a tenant.
func HasTenant(ctx context.Context) bool {
	_, ok := TenantIDFromContext(ctx)
	return ok
}

// HasOrganization reports whether the current isolation context carries an
// organization.
func HasOrganization(ctx context.Context) bool {
	_, ok := OrganizationIDFromContext(ctx)
	return ok
}

// HasDepartment reports whether the current isolation context carries a
// department.
func HasDepartment(ctx context.Context) bool {
	_, ok := DepartmentIDFromContext(ctx)
	return ok
}

// FromHeaderLookup builds a Context from a header accessor. It is shared by
// the HTTP middleware, the gRPC interceptors and the MQ consumers; each of
// those transports already performs case-insensitive header lookup.
//
// A validation failure propagates to the caller; the transport layer decides
// between the degrade-to-platform fallback and rejecting the request.
func FromHeaderLookup(get func(string) string) (*Context, error) {
	return New(
		get(HeaderTenantID),
		get(HeaderOrganizationID),
		get(HeaderDepartmentID),
		get(HeaderUserID),
	)
}

// CarryHeaders returns the present identifiers of the current isolation
// context under their conventional header names, for injection into outbound
// requests and messages.
func CarryHeaders(ctx context.Context) map[string]string {
	ic, ok := FromContext(ctx)
	if !ok || ic.IsEmpty() {
		return nil
	}
	headers := make(map[string]string, 4)
	if ic.HasTenant() {
		headers[HeaderTenantID] = ic.TenantID().String()
	}
	if ic.HasOrganization() {
		headers[HeaderOrganizationID] = ic.OrganizationID().String()
	}
	if ic.HasDepartment() {
		headers[HeaderDepartmentID] = ic.DepartmentID().String()
	}
	if ic.HasUser() {
		headers[HeaderUserID] = ic.UserID().String()
	}
	return headers
}
