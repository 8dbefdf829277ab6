package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"

	"github.com/google/uuid"
)

/* ========================================================================
 * 分布式锁 - 基于 Redis 的简化 Redlock 实现
 * ========================================================================
 * 职责: 跨实例并发控制
 * 锁键可以按隔离层级作用域化，同名资源在不同租户间互不竞争
 * ======================================================================== */

var (
	ErrLockFailed   = errors.New("failed to acquire lock")
	ErrUnlockFailed = errors.New("failed to release lock")
)

// releaseScript 只有持有者才能删除锁键
const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// extendScript 只有持有者才能延长过期时间
const extendScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Lock 分布式锁
type Lock struct {
	client     *Client
	key        string
	value      string // 持有者标识，防止误删他人的锁
	ttl        time.Duration
	defaultOpt LockOption

	mu           sync.Mutex // 保护 value 与续期 goroutine 状态
	extendCancel context.CancelFunc
}

// LockOption 锁选项
type LockOption struct {
	TTL                time.Duration // 锁过期时间
	RetryTimes         int           // 获取锁的重试次数
	RetryDelay         time.Duration // 重试间隔
	AutoExtend         bool          // 是否自动续期
	ExtendFactor       float64       // 续期触发因子 (TTL 的比例)
	MaxLifetime        time.Duration // 自动续期最大生命周期 (<=0 时为 TTL*10)
	IgnoreParentCancel bool          // 续期是否忽略父 context 的取消
}

// DefaultLockOption 默认锁选项
func DefaultLockOption() LockOption {
	return LockOption{
		TTL:          30 * time.Second,
		RetryTimes:   5,
		RetryDelay:   100 * time.Millisecond,
		AutoExtend:   false,
		ExtendFactor: 0.5,
	}
}

// NewLock 创建分布式锁，锁键为全局作用域
func (c *Client) NewLock(key string, opts ...LockOption) *Lock {
	return c.newLock("lock:"+key, opts)
}

// NewScopedLock 创建按隔离上下文作用域化的分布式锁
// 同一资源名在不同租户/组织下生成不同的锁键
func (c *Client) NewScopedLock(ic *isolation.Context, resource string, opts ...LockOption) (*Lock, error) {
	ck, err := isolation.CacheKeyFromContext("lock", resource, "hl8:", ic)
	if err != nil {
		return nil, err
	}
	return c.newLock(ck.String(), opts), nil
}

func (c *Client) newLock(key string, opts []LockOption) *Lock {
	opt := DefaultLockOption()
	if len(opts) > 0 {
		opt = opts[0]
	}
	return &Lock{
		client:     c,
		key:        key,
		value:      uuid.New().String(),
		ttl:        opt.TTL,
		defaultOpt: opt,
	}
}

// Key 返回锁键
func (l *Lock) Key() string {
	return l.key
}

// Acquire 获取锁
func (l *Lock) Acquire(ctx context.Context) error {
	return l.AcquireWithOption(ctx, l.defaultOpt)
}

// AcquireWithOption 带选项获取锁
func (l *Lock) AcquireWithOption(ctx context.Context, opt LockOption) error {
	if opt.TTL > 0 {
		l.ttl = opt.TTL
	}

	value := uuid.New().String()
	for i := 0; i < opt.RetryTimes; i++ {
		ok, err := l.client.SetNX(ctx, l.key, value, l.ttl)
		if err != nil {
			return err
		}
		if ok {
			l.mu.Lock()
			l.value = value
			l.mu.Unlock()
			if opt.AutoExtend {
				l.startAutoExtend(ctx, opt)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opt.RetryDelay):
		}
	}

	return ErrLockFailed
}

// Release 释放锁，仅持有者可释放
func (l *Lock) Release(ctx context.Context) error {
	l.stopAutoExtend()

	l.mu.Lock()
	value := l.value
	l.mu.Unlock()

	result, err := l.client.rdb.Eval(ctx, releaseScript, []string{l.key}, value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrUnlockFailed
	}
	return nil
}

// Extend 延长锁时间，仅持有者可延长
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	l.mu.Lock()
	value := l.value
	l.mu.Unlock()

	result, err := l.client.rdb.Eval(ctx, extendScript, []string{l.key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockFailed
	}
	return nil
}

// startAutoExtend 启动续期 goroutine，重复调用会先停止旧的
func (l *Lock) startAutoExtend(parentCtx context.Context, opt LockOption) {
	l.stopAutoExtend()

	l.mu.Lock()
	defer l.mu.Unlock()

	factor := opt.ExtendFactor
	if factor <= 0 || factor > 1 {
		factor = DefaultLockOption().ExtendFactor
	}

	maxLifetime := opt.MaxLifetime
	if maxLifetime <= 0 {
		// 防止无限续期导致 goroutine 泄漏
		maxLifetime = l.ttl * 10
	}

	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx := parentCtx
	if opt.IgnoreParentCancel {
		ctx = context.WithoutCancel(parentCtx)
	}
	ctx, cancel := context.WithCancel(ctx)
	l.extendCancel = cancel

	go l.autoExtendLoop(ctx, factor, maxLifetime)
}

// stopAutoExtend 停止续期 goroutine
func (l *Lock) stopAutoExtend() {
	l.mu.Lock()
	cancel := l.extendCancel
	l.extendCancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// autoExtendLoop 周期性续期，直到锁丢失、被取消或超过最大生命周期
func (l *Lock) autoExtendLoop(ctx context.Context, factor float64, maxLifetime time.Duration) {
	interval := time.Duration(float64(l.ttl) * factor)

	deadlineCtx, deadlineCancel := context.WithTimeout(ctx, maxLifetime)
	defer deadlineCancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-deadlineCtx.Done():
			return
		case <-ticker.C:
			if !l.tryExtend(deadlineCtx) {
				return
			}
		}
	}
}

// tryExtend 带退避重试续期，返回是否应继续续期
func (l *Lock) tryExtend(ctx context.Context) bool {
	for i := 0; i < 3; i++ {
		extendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := l.Extend(extendCtx, l.ttl)
		cancel()

		if err == nil {
			return true
		}
		if errors.Is(err, ErrLockFailed) || errors.Is(err, context.Canceled) {
			return false
		}

		backoff := time.Duration(100*(1<<i)) * time.Millisecond
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
	return false
}
