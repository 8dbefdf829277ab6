package repository

import (
	"context"
	"database/sql"
	"regexp"

	"github.com/hl8/hl8-go-pkg/errors"
)

/* ========================================================================
 * Aggregate Repository Implementation - 聚合查询实现
 * ========================================================================
 * 职责: 实现 AggregateRepository 接口，聚合自动套用隔离范围
 * 安全: 对列名进行白名单验证，防止 SQL 注入
 * ======================================================================== */

// columnRegex 列名正则表达式（只允许字母、数字、下划线）
var columnRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateColumn 验证列名是否安全
func validateColumn(column string) error {
	if column == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "column cannot be empty")
	}
	if !columnRegex.MatchString(column) {
		return errors.New(errors.ErrCodeInvalidArgument, "invalid column name: "+column)
	}
	return nil
}

// IsSafeColumnName 检查列名是否安全（用于调用方验证）
func IsSafeColumnName(column string) bool {
	return columnRegex.MatchString(column)
}

// Sum 求和
func (r *RepositoryImpl[T]) Sum(ctx context.Context, column string, query string, args ...any) (float64, error) {
	if err := validateColumn(column); err != nil {
		return 0, err
	}

	var result float64
	db := r.scoped(ctx)

	if query != "" {
		db = db.Where(query, args...)
	}

	expr := "COALESCE(SUM(" + column + "), 0)"
	if err := db.Model(r.newModelPtr()).Select(expr).Scan(&result).Error; err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, "failed to sum records", err)
	}

	return result, nil
}

// Avg 平均值
func (r *RepositoryImpl[T]) Avg(ctx context.Context, column string, query string, args ...any) (float64, error) {
	if err := validateColumn(column); err != nil {
		return 0, err
	}

	var result float64
	db := r.scoped(ctx)

	if query != "" {
		db = db.Where(query, args...)
	}

	expr := "COALESCE(AVG(" + column + "), 0)"
	if err := db.Model(r.newModelPtr()).Select(expr).Scan(&result).Error; err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, "failed to average records", err)
	}

	return result, nil
}

// Max 最大值
// 返回值类型取决于数据库驱动的扫描结果（int64/float64/string/[]byte/time.Time 等）
// 无记录时返回 nil
func (r *RepositoryImpl[T]) Max(ctx context.Context, column string, query string, args ...any) (any, error) {
	return r.scanExtremum(ctx, "MAX", column, query, args...)
}

// Min 最小值
func (r *RepositoryImpl[T]) Min(ctx context.Context, column string, query string, args ...any) (any, error) {
	return r.scanExtremum(ctx, "MIN", column, query, args...)
}

func (r *RepositoryImpl[T]) scanExtremum(ctx context.Context, fn, column, query string, args ...any) (any, error) {
	if err := validateColumn(column); err != nil {
		return nil, err
	}

	var result any
	db := r.scoped(ctx)

	if query != "" {
		db = db.Where(query, args...)
	}

	row := db.Model(r.newModelPtr()).Select(fn + "(" + column + ")").Row()
	if err := row.Scan(&result); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to get "+fn+" value", err)
	}

	return result, nil
}

// CountByGroup 分组统计
// 用于类似 GROUP BY COUNT(*) 的查询
func (r *RepositoryImpl[T]) CountByGroup(ctx context.Context, groupColumn, query string, args ...any) (map[string]int64, error) {
	if err := validateColumn(groupColumn); err != nil {
		return nil, err
	}

	type groupCount struct {
		Group string `gorm:"column:group_column"`
		Count int64
	}

	var results []groupCount
	db := r.scoped(ctx)

	if query != "" {
		db = db.Where(query, args...)
	}

	expr := groupColumn + " as group_column, COUNT(*) as count"
	if err := db.Model(r.newModelPtr()).
		Select(expr).
		Group(groupColumn).
		Scan(&results).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to count by group", err)
	}

	resultMap := make(map[string]int64, len(results))
	for _, row := range results {
		resultMap[row.Group] = row.Count
	}

	return resultMap, nil
}
