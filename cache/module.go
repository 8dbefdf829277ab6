package cache

import (
	"github.com/hl8/hl8-go-pkg/cache/redis"
	"go.uber.org/fx"
)

/* ========================================================================
 * Cache Module
 * ========================================================================
 * 职责: 提供 Redis 客户端与隔离感知缓存门面的依赖注入模块
 * ======================================================================== */

// Module 缓存模块
// 提供: redis.Clienter, *redis.Client, *cache.Store
var Module = fx.Module("cache",
	fx.Provide(
		redis.NewClient,
		func(c *redis.Client) redis.Clienter { return c },
		NewStore,
	),
)
