package isolation

import (
	"strings"

	"github.com/hl8/hl8-go-pkg/errors"
)

// Identifier value objects for the isolation hierarchy. Each is a distinct
// named type so a TenantID can never be passed where an OrganizationID is
// expected. The zero value means "absent".
//
// Format rules beyond non-emptiness (UUID, ULID) are the caller's concern;
// the HTTP middleware enforces UUID format when configured to.
type (
	TenantID       string
	OrganizationID string
	DepartmentID   string
	UserID         string
)

func newID(raw, field string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.ErrInvalidArgument.WithDetail("field", field)
	}
	return value, nil
}

// NewTenantID validates and wraps a raw tenant identifier.
func NewTenantID(raw string) (TenantID, error) {
	v, err := newID(raw, "tenant_id")
	return TenantID(v), err
}

// NewOrganizationID validates and wraps a raw organization identifier.
func NewOrganizationID(raw string) (OrganizationID, error) {
	v, err := newID(raw, "organization_id")
	return OrganizationID(v), err
}

// NewDepartmentID validates and wraps a raw department identifier.
func NewDepartmentID(raw string) (DepartmentID, error) {
	v, err := newID(raw, "department_id")
	return DepartmentID(v), err
}

// NewUserID validates and wraps a raw user identifier.
func NewUserID(raw string) (UserID, error) {
	v, err := newID(raw, "user_id")
	return UserID(v), err
}

func (id TenantID) String() string       { return string(id) }
func (id OrganizationID) String() string { return string(id) }
func (id DepartmentID) String() string   { return string(id) }
func (id UserID) String() string         { return string(id) }

func (id TenantID) IsZero() bool       { return id == "" }
func (id OrganizationID) IsZero() bool { return id == "" }
func (id DepartmentID) IsZero() bool   { return id == "" }
func (id UserID) IsZero() bool         { return id == "" }
