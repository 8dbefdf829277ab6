package mysql

import (
	"go.uber.org/fx"
)

// Module MySQL 模块
// 提供: *gorm.DB
var Module = fx.Module("mysql",
	fx.Provide(NewDB),
)
