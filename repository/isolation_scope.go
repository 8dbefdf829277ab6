package repository

import (
	"context"
	"reflect"

	"github.com/hl8/hl8-go-pkg/errors"
	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/metrics"

	"gorm.io/gorm"
)

/* ========================================================================
 * Isolation Scope - 多层级数据隔离过滤
 * ========================================================================
 * 职责: 把请求的隔离上下文转换为 SQL WHERE 条件
 *   - 归属过滤: tenant_id / organization_id / department_id 精确匹配，
 *     用户级上下文额外匹配 owner_id
 *   - 共享放行: shared=true 的记录按 sharing_level 对应的范围可见
 *   - 平台级上下文不加任何过滤
 * ======================================================================== */

const (
	tenantColumn       = "tenant_id"
	organizationColumn = "organization_id"
	departmentColumn   = "department_id"
	ownerColumn        = "owner_id"
	sharedColumn       = "shared"
	sharingLevelColumn = "sharing_level"
)

// scopeColumns 归属过滤列，顺序与隔离层级一致
var scopeColumns = []string{tenantColumn, organizationColumn, departmentColumn}

// IsolationIgnorable marks models that should bypass isolation enforcement.
// Platform-wide reference data (dictionaries, feature flags) implements this.
type IsolationIgnorable interface {
	IsolationIgnored() bool
}

// applyIsolationScope narrows db to the rows visible from the isolation
// context stored in ctx: rows owned by the scope plus rows shared into it.
// Missing context degrades to the platform scope, which sees everything.
func (r *RepositoryImpl[T]) applyIsolationScope(ctx context.Context, db *gorm.DB) *gorm.DB {
	if r.isIsolationIgnored(r.newModelPtr()) {
		return db
	}

	ic := isolation.MustFromContext(ctx)
	if ic.IsEmpty() {
		return db
	}

	sch, err := r.getSchema()
	if err != nil {
		db.AddError(err)
		return db
	}
	owned, err := r.ownedCondition(ic)
	if err != nil {
		db.AddError(err)
		return db
	}

	_, hasShared := sch.FieldsByDBName[sharedColumn]
	_, hasSharingLevel := sch.FieldsByDBName[sharingLevelColumn]
	if !hasShared || !hasSharingLevel {
		return db.Where(owned)
	}

	return db.Where(r.newCondition().Where(owned).Or(r.sharedCondition(ic)))
}

// applyOwnedScope narrows db to rows owned by the scope only. Mutations use
// it so a record shared into a scope cannot be modified from that scope.
func (r *RepositoryImpl[T]) applyOwnedScope(ctx context.Context, db *gorm.DB) *gorm.DB {
	if r.isIsolationIgnored(r.newModelPtr()) {
		return db
	}

	ic := isolation.MustFromContext(ctx)
	if ic.IsEmpty() {
		return db
	}

	owned, err := r.ownedCondition(ic)
	if err != nil {
		db.AddError(err)
		return db
	}
	return db.Where(owned)
}

func (r *RepositoryImpl[T]) ownedCondition(ic *isolation.Context) (*gorm.DB, error) {
	sch, err := r.getSchema()
	if err != nil {
		return nil, err
	}
	if _, ok := sch.FieldsByDBName[tenantColumn]; !ok {
		return nil, errors.ErrInvalidArgument.WithDetail("missing_column", tenantColumn)
	}

	where := ic.BuildWhereClause()
	owned := r.newCondition()
	for _, col := range scopeColumns {
		val, ok := where[col]
		if !ok {
			continue
		}
		if _, ok := sch.FieldsByDBName[col]; !ok {
			continue
		}
		owned = owned.Where(col+" = ?", val)
	}

	// 用户级请求者只拥有自己创建的记录，他人的记录仅能经共享放行进入
	if ic.IsUserLevel() {
		if _, ok := sch.FieldsByDBName[ownerColumn]; ok {
			owned = owned.Where(ownerColumn+" = ?", ic.UserID().String())
		}
	}
	return owned, nil
}

// sharedCondition mirrors Context.CanAccess for shared rows in SQL.
func (r *RepositoryImpl[T]) sharedCondition(ic *isolation.Context) *gorm.DB {
	levels := r.newCondition().Where(sharingLevelColumn+" = ?", isolation.LevelPlatform.String())
	if ic.HasTenant() {
		levels = levels.Or(r.newCondition().
			Where(sharingLevelColumn+" = ?", isolation.LevelTenant.String()).
			Where(tenantColumn+" = ?", ic.TenantID().String()))
	}
	if ic.HasOrganization() {
		levels = levels.Or(r.newCondition().
			Where(sharingLevelColumn+" = ?", isolation.LevelOrganization.String()).
			Where(tenantColumn+" = ?", ic.TenantID().String()).
			Where(organizationColumn+" = ?", ic.OrganizationID().String()))
	}
	if ic.HasDepartment() {
		levels = levels.Or(r.newCondition().
			Where(sharingLevelColumn+" = ?", isolation.LevelDepartment.String()).
			Where(tenantColumn+" = ?", ic.TenantID().String()).
			Where(organizationColumn+" = ?", ic.OrganizationID().String()).
			Where(departmentColumn+" = ?", ic.DepartmentID().String()))
	}
	if ic.HasUser() {
		levels = levels.Or(r.newCondition().
			Where(sharingLevelColumn+" = ?", isolation.LevelUser.String()).
			Where(ownerColumn+" = ?", ic.UserID().String()))
	}

	return r.newCondition().Where(sharedColumn+" = ?", true).Where(levels)
}

// newCondition returns an empty condition builder detached from the query
// under construction, for grouped WHERE clauses.
func (r *RepositoryImpl[T]) newCondition() *gorm.DB {
	return r.db.Session(&gorm.Session{NewDB: true})
}

// setIsolationFields stamps the model's ownership columns from the isolation
// context before insert. Columns the model does not carry are skipped.
func (r *RepositoryImpl[T]) setIsolationFields(ctx context.Context, model any) error {
	if r.isIsolationIgnored(model) {
		return nil
	}

	ic := isolation.MustFromContext(ctx)
	if ic.IsEmpty() {
		return nil
	}

	sch, err := r.getSchema()
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(model)
	set := func(col, val string) error {
		field, ok := sch.FieldsByDBName[col]
		if !ok || val == "" {
			return nil
		}
		return field.Set(ctx, rv, val)
	}

	if err := set(tenantColumn, ic.TenantID().String()); err != nil {
		return err
	}
	if err := set(organizationColumn, ic.OrganizationID().String()); err != nil {
		return err
	}
	if err := set(departmentColumn, ic.DepartmentID().String()); err != nil {
		return err
	}
	return set(ownerColumn, ic.UserID().String())
}

// assertWriteAccess rejects writes to rows owned by a different scope.
// Platform contexts may write anywhere.
func (r *RepositoryImpl[T]) assertWriteAccess(ctx context.Context, model any) error {
	if r.isIsolationIgnored(model) {
		return nil
	}

	ic := isolation.MustFromContext(ctx)
	if ic.IsEmpty() {
		return nil
	}

	sch, err := r.getSchema()
	if err != nil {
		return err
	}
	if _, ok := sch.FieldsByDBName[tenantColumn]; !ok {
		return nil
	}

	rv := reflect.ValueOf(model)
	where := ic.BuildWhereClause()
	for _, col := range scopeColumns {
		want, ok := where[col]
		if !ok {
			continue
		}
		field, ok := sch.FieldsByDBName[col]
		if !ok {
			continue
		}
		got, _ := field.ValueOf(ctx, rv)
		if s, ok := got.(string); !ok || s != want {
			metrics.IsolationAccessDeniedTotal.WithLabelValues(ic.Level().String()).Inc()
			return errors.ErrIsolationAccessDenied.WithDetail("column", col)
		}
	}
	return nil
}

func (r *RepositoryImpl[T]) isIsolationIgnored(model any) bool {
	if model == nil {
		return false
	}

	if ignorable, ok := model.(IsolationIgnorable); ok {
		return ignorable.IsolationIgnored()
	}

	rv := reflect.ValueOf(model)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		if ignorable, ok := rv.Elem().Interface().(IsolationIgnorable); ok {
			return ignorable.IsolationIgnored()
		}
	}

	return false
}

// CheckAccess enforces the in-memory sharing rules for a single record and
// records denials. Service layers use it after loading data through
// non-scoped paths (caches, joins).
func CheckAccess(ctx context.Context, data *isolation.Context, shared bool, sharingLevel isolation.Level) error {
	requester := isolation.MustFromContext(ctx)
	if requester.CanAccess(data, shared, sharingLevel) {
		return nil
	}
	metrics.IsolationAccessDeniedTotal.WithLabelValues(requester.Level().String()).Inc()
	return errors.ErrIsolationAccessDenied.WithDetail("requester_level", requester.Level().String())
}
