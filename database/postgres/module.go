package postgres

import (
	"go.uber.org/fx"
)

// Module PostgreSQL 模块
// 提供: *gorm.DB（SQL 日志经 database.ZapGormLogger 带上隔离字段）
// 与 mysql.Module 二选一注入
var Module = fx.Module("postgres",
	fx.Provide(NewDB),
)
