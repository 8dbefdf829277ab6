package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/hl8/hl8-go-pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

/* ========================================================================
 * Redis Client - 键值存储
 * ========================================================================
 * 职责: 提供 Redis 连接池、缓存操作、按模式批量失效
 * 技术: go-redis/v9
 * ======================================================================== */

// Config Redis 配置
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
}

// Clienter 缓存层消费的最小键值接口
// Get 在键不存在时返回 redis.Nil
type Clienter interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// Client Redis 客户端封装
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

type ClientParams struct {
	fx.In
	Lc     fx.Lifecycle
	Config Config
	Logger *logger.Logger
}

// NewClient 创建 Redis 客户端
func NewClient(p ClientParams) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", p.Config.Host, p.Config.Port),
		Password:     p.Config.Password,
		DB:           p.Config.DB,
		PoolSize:     p.Config.PoolSize,
		MinIdleConns: p.Config.MinIdleConns,
	})

	client := &Client{
		rdb: rdb,
		log: p.Logger,
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// 测试连接
			if err := rdb.Ping(ctx).Err(); err != nil {
				p.Logger.Error("Redis connection failed", zap.Error(err))
				return err
			}
			p.Logger.Info("Redis connected",
				zap.String("addr", fmt.Sprintf("%s:%d", p.Config.Host, p.Config.Port)),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("Closing Redis connection")
			return rdb.Close()
		},
	})

	return client
}

// Raw 返回底层 Redis 客户端 (用于高级操作)
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

/* ========================================================================
 * 缓存操作
 * ======================================================================== */

// Get 获取缓存
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set 设置缓存
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// SetNX 设置缓存 (如果不存在)
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, expiration).Result()
}

// Del 删除缓存，返回实际删除的键数量
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Del(ctx, keys...).Result()
}

// Exists 检查 key 是否存在
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Exists(ctx, keys...).Result()
}

// Expire 设置过期时间
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.rdb.Expire(ctx, key, expiration).Err()
}

/* ========================================================================
 * 模式扫描 / 批量失效
 * ======================================================================== */

const scanBatchSize = 200

// Scan 游标扫描匹配 pattern 的键
func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return c.rdb.Scan(ctx, cursor, match, count).Result()
}

// DeleteByPattern 删除所有匹配 pattern 的键，返回删除数量
// 使用 SCAN 而非 KEYS，避免阻塞 Redis
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanBatchSize)
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.Del(ctx, keys...)
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

/* ========================================================================
 * 健康检查
 * ======================================================================== */

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
