package isolation

import (
	"strings"

	"github.com/hl8/hl8-go-pkg/errors"
)

// Context models a position in the five-level isolation hierarchy
// (platform > tenant > organization > department, with user as a sibling
// scope under tenant or platform). It is immutable: the Switch* operations
// return new instances.
//
// Structural invariants, enforced at construction:
//   - an organization requires a tenant
//   - a department requires both a tenant and an organization
type Context struct {
	tenantID       TenantID
	organizationID OrganizationID
	departmentID   DepartmentID
	userID         UserID

	// level is derived once at construction; the type is immutable so the
	// value can never go stale.
	level Level
}

var platformContext = &Context{level: LevelPlatform}

// Platform returns the empty, platform-level context.
func Platform() *Context {
	return platformContext
}

// Tenant builds a tenant-level context.
func Tenant(tenantID string) (*Context, error) {
	tid, err := NewTenantID(tenantID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidTenantContext, "tenant id is required", err)
	}
	return newContext(tid, "", "", "")
}

// Organization builds an organization-level context. The owning tenant is
// mandatory.
func Organization(tenantID, organizationID string) (*Context, error) {
	oid, err := NewOrganizationID(organizationID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidOrganizationContext, "organization id is required", err)
	}
	tid, err := NewTenantID(tenantID)
	if err != nil {
		return nil, errors.ErrInvalidOrganizationContext.
			WithDetail("organization_id", oid.String()).
			WithDetail("missing", "tenant_id")
	}
	return newContext(tid, oid, "", "")
}

// Department builds a department-level context. Both ancestors are mandatory.
func Department(tenantID, organizationID, departmentID string) (*Context, error) {
	did, err := NewDepartmentID(departmentID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDepartmentContext, "department id is required", err)
	}
	tid, err := NewTenantID(tenantID)
	if err != nil {
		return nil, errors.ErrInvalidDepartmentContext.
			WithDetail("department_id", did.String()).
			WithDetail("missing", "tenant_id")
	}
	oid, err := NewOrganizationID(organizationID)
	if err != nil {
		return nil, errors.ErrInvalidDepartmentContext.
			WithDetail("department_id", did.String()).
			WithDetail("missing", "organization_id")
	}
	return newContext(tid, oid, did, "")
}

// User builds a user-level context. tenantID may be empty for platform-scoped
// users (e.g. platform operators).
func User(userID, tenantID string) (*Context, error) {
	uid, err := NewUserID(userID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidUserContext, "user id is required", err)
	}
	var tid TenantID
	if strings.TrimSpace(tenantID) != "" {
		if tid, err = NewTenantID(tenantID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidUserContext, "invalid tenant id", err)
		}
	}
	return newContext(tid, "", "", uid)
}

// New builds a context from raw identifier strings, any of which may be
// empty. This is the entry point for header/metadata extraction; it applies
// the same ancestor invariants as the level-specific factories.
func New(tenantID, organizationID, departmentID, userID string) (*Context, error) {
	var (
		tid TenantID
		oid OrganizationID
		did DepartmentID
		uid UserID
		err error
	)
	if strings.TrimSpace(tenantID) != "" {
		if tid, err = NewTenantID(tenantID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidTenantContext, "invalid tenant id", err)
		}
	}
	if strings.TrimSpace(organizationID) != "" {
		if oid, err = NewOrganizationID(organizationID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidOrganizationContext, "invalid organization id", err)
		}
	}
	if strings.TrimSpace(departmentID) != "" {
		if did, err = NewDepartmentID(departmentID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidDepartmentContext, "invalid department id", err)
		}
	}
	if strings.TrimSpace(userID) != "" {
		if uid, err = NewUserID(userID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidUserContext, "invalid user id", err)
		}
	}
	return newContext(tid, oid, did, uid)
}

func newContext(tid TenantID, oid OrganizationID, did DepartmentID, uid UserID) (*Context, error) {
	if !oid.IsZero() && tid.IsZero() {
		return nil, errors.ErrInvalidOrganizationContext.
			WithDetail("organization_id", oid.String()).
			WithDetail("missing", "tenant_id")
	}
	if !did.IsZero() {
		if tid.IsZero() {
			return nil, errors.ErrInvalidDepartmentContext.
				WithDetail("department_id", did.String()).
				WithDetail("missing", "tenant_id")
		}
		if oid.IsZero() {
			return nil, errors.ErrInvalidDepartmentContext.
				WithDetail("department_id", did.String()).
				WithDetail("missing", "organization_id")
		}
	}

	c := &Context{
		tenantID:       tid,
		organizationID: oid,
		departmentID:   did,
		userID:         uid,
	}
	c.level = c.computeLevel()
	return c, nil
}

// computeLevel derives the isolation level. Most specific wins; USER
// deliberately outranks TENANT, so a user-scoped context that carries a
// tenant reference is still classified USER.
func (c *Context) computeLevel() Level {
	switch {
	case !c.departmentID.IsZero():
		return LevelDepartment
	case !c.organizationID.IsZero():
		return LevelOrganization
	case !c.userID.IsZero():
		return LevelUser
	case !c.tenantID.IsZero():
		return LevelTenant
	default:
		return LevelPlatform
	}
}

// Level returns the derived isolation level.
func (c *Context) Level() Level { return c.level }

// TenantID returns the tenant identifier; zero when absent.
func (c *Context) TenantID() TenantID { return c.tenantID }

// OrganizationID returns the organization identifier; zero when absent.
func (c *Context) OrganizationID() OrganizationID { return c.organizationID }

// DepartmentID returns the department identifier; zero when absent.
func (c *Context) DepartmentID() DepartmentID { return c.departmentID }

// UserID returns the user identifier; zero when absent.
func (c *Context) UserID() UserID { return c.userID }

func (c *Context) HasTenant() bool       { return !c.tenantID.IsZero() }
func (c *Context) HasOrganization() bool { return !c.organizationID.IsZero() }
func (c *Context) HasDepartment() bool   { return !c.departmentID.IsZero() }
func (c *Context) HasUser() bool         { return !c.userID.IsZero() }

// IsEmpty reports whether the context carries no identifiers at all, i.e.
// it is the platform-level context.
func (c *Context) IsEmpty() bool { return c.level == LevelPlatform }

func (c *Context) IsTenantLevel() bool       { return c.level == LevelTenant }
func (c *Context) IsOrganizationLevel() bool { return c.level == LevelOrganization }
func (c *Context) IsDepartmentLevel() bool   { return c.level == LevelDepartment }
func (c *Context) IsUserLevel() bool         { return c.level == LevelUser }

// BuildCacheKey composes a colon-delimited cache key whose leading segments
// encode the full ancestor chain at the current level:
//
//	PLATFORM     platform:{ns}:{key}
//	TENANT       tenant:{t}:{ns}:{key}
//	ORGANIZATION tenant:{t}:org:{o}:{ns}:{key}
//	DEPARTMENT   tenant:{t}:org:{o}:dept:{d}:{ns}:{key}
//	USER         tenant:{t}:user:{u}:{ns}:{key}, or user:{u}:{ns}:{key}
//	             when the user is not tenant-scoped
//
// The segment order is a wire contract: prefix-pattern cache invalidation
// (CacheKey.Pattern) depends on it.
func (c *Context) BuildCacheKey(namespace, key string) string {
	return c.ScopePrefix() + ":" + namespace + ":" + key
}

// ScopePrefix returns the level-specific leading segments of a cache key,
// without namespace and key name. It is the anchor for scope-wide
// invalidation patterns.
func (c *Context) ScopePrefix() string {
	var sb strings.Builder
	switch c.level {
	case LevelTenant:
		sb.WriteString("tenant:")
		sb.WriteString(c.tenantID.String())
	case LevelOrganization:
		sb.WriteString("tenant:")
		sb.WriteString(c.tenantID.String())
		sb.WriteString(":org:")
		sb.WriteString(c.organizationID.String())
	case LevelDepartment:
		sb.WriteString("tenant:")
		sb.WriteString(c.tenantID.String())
		sb.WriteString(":org:")
		sb.WriteString(c.organizationID.String())
		sb.WriteString(":dept:")
		sb.WriteString(c.departmentID.String())
	case LevelUser:
		if c.HasTenant() {
			sb.WriteString("tenant:")
			sb.WriteString(c.tenantID.String())
			sb.WriteString(":user:")
		} else {
			sb.WriteString("user:")
		}
		sb.WriteString(c.userID.String())
	default:
		sb.WriteString("platform")
	}
	return sb.String()
}

// BuildLogContext returns the present identifiers as a flat string map for
// structured logging. Absent identifiers are omitted, never emitted empty.
func (c *Context) BuildLogContext() map[string]string {
	fields := make(map[string]string, 4)
	if c.HasTenant() {
		fields["tenant_id"] = c.tenantID.String()
	}
	if c.HasOrganization() {
		fields["organization_id"] = c.organizationID.String()
	}
	if c.HasDepartment() {
		fields["department_id"] = c.departmentID.String()
	}
	if c.HasUser() {
		fields["user_id"] = c.userID.String()
	}
	return fields
}

// BuildWhereClause returns the present tenant/organization/department
// identifiers as a flat column→value equality filter. The user identifier is
// deliberately excluded: row ownership is an orthogonal predicate, not part
// of the hierarchy filter.
func (c *Context) BuildWhereClause() map[string]string {
	clause := make(map[string]string, 3)
	if c.HasTenant() {
		clause["tenant_id"] = c.tenantID.String()
	}
	if c.HasOrganization() {
		clause["organization_id"] = c.organizationID.String()
	}
	if c.HasDepartment() {
		clause["department_id"] = c.departmentID.String()
	}
	return clause
}

// Equal reports whether both contexts carry identical identifiers, treating
// "both absent" as a match. A nil other never matches.
func (c *Context) Equal(other *Context) bool {
	if other == nil {
		return false
	}
	return c.tenantID == other.tenantID &&
		c.organizationID == other.organizationID &&
		c.departmentID == other.departmentID &&
		c.userID == other.userID
}

// CanAccess decides whether this (requester) context may read data stored
// under dataContext.
//
//   - A platform-level requester always may.
//   - Non-shared data requires an exact structural match of all four
//     identifiers.
//   - Shared data is matched against sharingLevel: the requester must agree
//     with the data context on every identifier the sharing level names.
//     An unspecified sharing level on shared data denies access (fail
//     closed).
func (c *Context) CanAccess(dataContext *Context, shared bool, sharingLevel Level) bool {
	if c.IsEmpty() {
		return true
	}
	if dataContext == nil {
		dataContext = Platform()
	}

	if !shared {
		return c.Equal(dataContext)
	}

	switch sharingLevel {
	case LevelPlatform:
		return true
	case LevelTenant:
		return c.tenantID == dataContext.tenantID
	case LevelOrganization:
		return c.tenantID == dataContext.tenantID &&
			c.organizationID == dataContext.organizationID
	case LevelDepartment:
		return c.tenantID == dataContext.tenantID &&
			c.organizationID == dataContext.organizationID &&
			c.departmentID == dataContext.departmentID
	case LevelUser:
		return c.userID == dataContext.userID
	default:
		return false
	}
}

// SwitchOrganization returns a new organization-level context under the same
// tenant, dropping any department. The receiver is unchanged.
func (c *Context) SwitchOrganization(organizationID string) (*Context, error) {
	if !c.HasTenant() {
		return nil, errors.ErrInvalidOrganizationContext.
			WithDetail("organization_id", organizationID).
			WithDetail("missing", "tenant_id")
	}
	oid, err := NewOrganizationID(organizationID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidOrganizationContext, "organization id is required", err)
	}
	return newContext(c.tenantID, oid, "", c.userID)
}

// SwitchDepartment returns a new department-level context under the same
// tenant and organization. The receiver is unchanged.
func (c *Context) SwitchDepartment(departmentID string) (*Context, error) {
	if !c.HasTenant() {
		return nil, errors.ErrInvalidDepartmentContext.
			WithDetail("department_id", departmentID).
			WithDetail("missing", "tenant_id")
	}
	if !c.HasOrganization() {
		return nil, errors.ErrInvalidDepartmentContext.
			WithDetail("department_id", departmentID).
			WithDetail("missing", "organization_id")
	}
	did, err := NewDepartmentID(departmentID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDepartmentContext, "department id is required", err)
	}
	return newContext(c.tenantID, c.organizationID, did, c.userID)
}
