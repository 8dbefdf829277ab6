package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hl8/hl8-go-pkg/cache/redis"
	"github.com/hl8/hl8-go-pkg/errors"
	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/metrics"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

/* ========================================================================
 * Isolation-aware Cache Store
 * ========================================================================
 * 职责: 按当前请求的隔离上下文派生缓存键，读写 JSON 编码的值，
 *       并支持按命名空间 / 按隔离范围的批量失效
 * ======================================================================== */

// Config 缓存门面配置
type Config struct {
	// KeyPrefix 所有键的前缀，默认 "hl8:cache:"
	KeyPrefix string `yaml:"key_prefix"`

	// DefaultTTL 未显式指定时的过期时间，默认 5 分钟
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Store 隔离感知的缓存门面
// 所有操作从 ctx 中读取当前隔离上下文；未设置时按平台级处理
type Store struct {
	client redis.Clienter
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

type StoreParams struct {
	fx.In
	Client redis.Clienter
	Config Config
	Logger *logger.Logger
}

// NewStore 创建缓存门面
func NewStore(p StoreParams) *Store {
	prefix := p.Config.KeyPrefix
	if prefix == "" {
		prefix = isolation.DefaultKeyPrefix
	}
	ttl := p.Config.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{
		client: p.Client,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
}

func (s *Store) cacheKey(ctx context.Context, namespace, key string) (*isolation.CacheKey, error) {
	return isolation.CacheKeyFromContext(namespace, key, s.prefix, isolation.MustFromContext(ctx))
}

// Get 读取并反序列化缓存值到 dest
// 未命中返回 errors.ErrNotFound；存储故障原样向上传播
func (s *Store) Get(ctx context.Context, namespace, key string, dest any) error {
	ck, err := s.cacheKey(ctx, namespace, key)
	if err != nil {
		return err
	}

	raw, err := s.client.Get(ctx, ck.String())
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			metrics.CacheRequestTotal.WithLabelValues(ck.Level().String(), namespace, "false").Inc()
			return errors.ErrNotFound.WithDetail("key", ck.String())
		}
		return errors.Wrap(errors.ErrCodeUnavailable, "cache get failed", err)
	}

	metrics.CacheRequestTotal.WithLabelValues(ck.Level().String(), namespace, "true").Inc()
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "cache value decode failed", err)
	}
	return nil
}

// Set 序列化并写入缓存值，ttl <= 0 时使用默认 TTL
func (s *Store) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	ck, err := s.cacheKey(ctx, namespace, key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "cache value encode failed", err)
	}

	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, ck.String(), data, ttl); err != nil {
		return errors.Wrap(errors.ErrCodeUnavailable, "cache set failed", err)
	}
	return nil
}

// Delete 删除单个键，返回是否确实删除了数据
func (s *Store) Delete(ctx context.Context, namespace, key string) (bool, error) {
	ck, err := s.cacheKey(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	n, err := s.client.Del(ctx, ck.String())
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeUnavailable, "cache delete failed", err)
	}
	return n > 0, nil
}

// Exists 检查键是否存在
func (s *Store) Exists(ctx context.Context, namespace, key string) (bool, error) {
	ck, err := s.cacheKey(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, ck.String())
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeUnavailable, "cache exists failed", err)
	}
	return n > 0, nil
}

// InvalidateNamespace 删除当前隔离范围下指定命名空间的所有键
// 例如部门级上下文只会清掉本部门的 user 命名空间
func (s *Store) InvalidateNamespace(ctx context.Context, namespace string) (int64, error) {
	ic := isolation.MustFromContext(ctx)
	pattern := s.prefix + ic.ScopePrefix() + ":" + namespace + ":*"
	return s.invalidate(ctx, ic, pattern)
}

// InvalidateScope 删除当前隔离范围下的所有键 (所有命名空间)
// 典型用途: 租户下线时清空其全部缓存
func (s *Store) InvalidateScope(ctx context.Context) (int64, error) {
	ic := isolation.MustFromContext(ctx)
	pattern := s.prefix + ic.ScopePrefix() + ":*"
	return s.invalidate(ctx, ic, pattern)
}

func (s *Store) invalidate(ctx context.Context, ic *isolation.Context, pattern string) (int64, error) {
	deleted, err := s.client.DeleteByPattern(ctx, pattern)
	if err != nil {
		return deleted, errors.Wrap(errors.ErrCodeUnavailable, "cache invalidation failed", err)
	}
	metrics.CacheInvalidationTotal.WithLabelValues(ic.Level().String()).Add(float64(deleted))
	s.log.WithIsolation(ctx).Debug("Cache invalidated",
		zap.String("pattern", pattern),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}
