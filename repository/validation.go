package repository

import (
	"fmt"
	"regexp"
	"strings"
)

/* ========================================================================
 * SQL 安全校验器
 * ========================================================================
 * 职责: 防止 OrderBy/Select/Joins 注入风险
 * 设计: 白名单模式 + 黑名单防御，buildQuery 统一调用
 * ======================================================================== */

var (
	// 列名白名单正则：仅允许字母、数字、下划线、点号（表别名）
	// 格式: column 或 table.column 或 table.column AS alias
	columnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?(\s+AS\s+[a-zA-Z_][a-zA-Z0-9_]*)?$`)

	// SQL 危险关键字黑名单
	dangerousKeywords = []string{
		"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER", "CREATE",
		"GRANT", "REVOKE", "EXEC", "EXECUTE", "UNION", "INTO", "OUTFILE",
		"LOAD_FILE", "DUMPFILE", "--", "/*", "*/", ";", "SLEEP", "BENCHMARK",
	}

	aggregateFuncs = []string{"COUNT(", "SUM(", "AVG(", "MAX(", "MIN(", "GROUP_CONCAT("}
)

// ValidationError SQL 校验错误
type ValidationError struct {
	Field   string // OrderBy/Select/Joins
	Value   string
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("SQL validation failed for %s: %s (value: %s, reason: %s)",
		e.Field, e.Message, e.Value, e.Reason)
}

// ValidateOrderBy 校验排序字符串
//
// 允许格式: "column"、"column ASC/DESC"、"table.column DESC"，逗号分隔多字段
func ValidateOrderBy(orderBy string) error {
	if strings.TrimSpace(orderBy) == "" {
		return nil
	}

	if err := checkDangerousKeywords(orderBy, "OrderBy"); err != nil {
		return err
	}

	for _, part := range strings.Split(orderBy, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 {
			return &ValidationError{
				Field:   "OrderBy",
				Value:   orderBy,
				Reason:  "invalid_format",
				Message: "must be 'column' or 'column ASC/DESC'",
			}
		}
		if err := validateColumnName(fields[0]); err != nil {
			return &ValidationError{
				Field:   "OrderBy",
				Value:   orderBy,
				Reason:  "invalid_column",
				Message: err.Error(),
			}
		}
		if len(fields) == 2 {
			switch strings.ToUpper(fields[1]) {
			case "ASC", "DESC":
			default:
				return &ValidationError{
					Field:   "OrderBy",
					Value:   orderBy,
					Reason:  "invalid_direction",
					Message: fmt.Sprintf("direction must be ASC or DESC, got: %s", fields[1]),
				}
			}
		}
	}

	return nil
}

// ValidateSelect 校验选择字段，允许普通列名和聚合函数
func ValidateSelect(selects []string) error {
	for _, sel := range selects {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}

		if err := checkDangerousKeywords(sel, "Select"); err != nil {
			return err
		}

		if isAggregateFunction(sel) {
			continue
		}

		if err := validateColumnName(sel); err != nil {
			return &ValidationError{
				Field:   "Select",
				Value:   sel,
				Reason:  "invalid_column",
				Message: err.Error(),
			}
		}
	}

	return nil
}

// ValidateJoins 校验连接查询
//
// 允许格式: "LEFT JOIN orders ON orders.user_id = users.id"
func ValidateJoins(joins []string) error {
	for _, join := range joins {
		join = strings.TrimSpace(join)
		if join == "" {
			continue
		}

		if err := checkDangerousKeywords(join, "Joins"); err != nil {
			return err
		}

		upperJoin := strings.ToUpper(join)
		if !strings.Contains(upperJoin, "JOIN") {
			return &ValidationError{
				Field:   "Joins",
				Value:   join,
				Reason:  "missing_join_keyword",
				Message: "must contain JOIN keyword",
			}
		}
		if !strings.Contains(upperJoin, " ON ") {
			return &ValidationError{
				Field:   "Joins",
				Value:   join,
				Reason:  "missing_on_clause",
				Message: "must contain ON clause",
			}
		}
	}

	return nil
}

func validateColumnName(column string) error {
	col := strings.TrimSpace(column)
	if col == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if !columnPattern.MatchString(col) {
		return fmt.Errorf("column name contains invalid characters: %s", col)
	}
	return nil
}

func checkDangerousKeywords(value, field string) error {
	upperValue := strings.ToUpper(value)

	for _, keyword := range dangerousKeywords {
		if isKeywordMatch(upperValue, keyword) {
			return &ValidationError{
				Field:   field,
				Value:   value,
				Reason:  "dangerous_keyword",
				Message: fmt.Sprintf("contains dangerous keyword: %s", keyword),
			}
		}
	}

	return nil
}

// isKeywordMatch 检查关键字是否匹配（使用单词边界，
// 避免误判 created_at 这类包含子串的合法列名）
func isKeywordMatch(text, keyword string) bool {
	if keyword == "--" || keyword == "/*" || keyword == "*/" || keyword == ";" {
		return strings.Contains(text, keyword)
	}

	idx := strings.Index(text, keyword)
	if idx == -1 {
		return false
	}

	if idx > 0 && isWordChar(text[idx-1]) {
		return false
	}
	endIdx := idx + len(keyword)
	if endIdx < len(text) && isWordChar(text[endIdx]) {
		return false
	}
	return true
}

func isWordChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '_'
}

func isAggregateFunction(sel string) bool {
	upperSel := strings.ToUpper(strings.TrimSpace(sel))
	for _, fn := range aggregateFuncs {
		if strings.HasPrefix(upperSel, fn) {
			return true
		}
	}
	return false
}
