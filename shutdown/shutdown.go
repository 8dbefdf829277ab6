package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/hl8/hl8-go-pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

/* ========================================================================
 * Shutdown Manager - 优雅关停管理器
 * ========================================================================
 * 职责: 按优先级排空应用资源，保证租户请求不被硬切断
 * 特性:
 *   - 钩子按优先级分批执行，同批并行
 *   - 整体超时 + 单钩子超时双重控制
 *   - 信号监听 (SIGINT, SIGTERM, SIGQUIT)
 * ======================================================================== */

// Hook 关停钩子函数类型
type Hook func(ctx context.Context) error

// registration 已注册的钩子
type registration struct {
	name     string
	hook     Hook
	priority int
}

// Manager 优雅关停管理器
type Manager struct {
	config *Config
	logger *logger.Logger

	mu    sync.RWMutex
	hooks []registration

	done chan struct{}
	once sync.Once
}

// ManagerParams 依赖参数
type ManagerParams struct {
	fx.In

	Logger *logger.Logger
	Config *Config `optional:"true"`
}

// NewManager 创建优雅关停管理器
func NewManager(p ManagerParams) *Manager {
	cfg := p.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Manager{
		config: cfg,
		logger: p.Logger,
		done:   make(chan struct{}),
	}
}

// RegisterHook 注册关停钩子（使用默认优先级）
func (m *Manager) RegisterHook(name string, hook Hook) {
	m.RegisterHookWithPriority(name, hook, PriorityNormal)
}

// RegisterHookWithPriority 注册带优先级的关停钩子
// priority 数值越小越先执行，同优先级钩子并行执行
func (m *Manager) RegisterHookWithPriority(name string, hook Hook, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, registration{
		name:     name,
		hook:     hook,
		priority: priority,
	})

	m.logger.Info("Registered shutdown hook",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Wait 阻塞等待关停信号
// 监听 SIGINT, SIGTERM, SIGQUIT
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigChan
	m.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	m.Shutdown(context.Background())
}

// Shutdown 执行优雅关停，可重复调用，仅首次生效
func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.drain(ctx)
		close(m.done)
	})
}

// Done 返回关停完成通道
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// IsShutdown 检查是否已经关停
func (m *Manager) IsShutdown() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// WaitForShutdown 阻塞等待关停完成
func (m *Manager) WaitForShutdown() {
	<-m.done
}

// drain 按优先级分批执行钩子
func (m *Manager) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	m.mu.RLock()
	hooks := make([]registration, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].priority < hooks[j].priority
	})

	m.logger.Info("Starting graceful shutdown",
		zap.Int("hooks", len(hooks)),
		zap.Duration("timeout", m.config.Timeout),
	)

	var results []hookResult
	for _, batch := range batchByPriority(hooks) {
		if drainCtx.Err() != nil {
			m.logger.Warn("Shutdown timeout reached, skipping remaining hooks",
				zap.Int("priority", batch.priority),
			)
			break
		}

		m.logger.Info("Executing shutdown hooks",
			zap.Int("priority", batch.priority),
			zap.Int("count", len(batch.hooks)),
		)
		results = append(results, m.runBatch(drainCtx, batch.hooks)...)
	}

	m.report(results)

	if drainCtx.Err() == nil {
		m.logger.Info("Graceful shutdown completed")
	} else {
		m.logger.Warn("Graceful shutdown completed with timeout")
	}
}

// batch 同一优先级的钩子
type batch struct {
	priority int
	hooks    []registration
}

// batchByPriority 将排序后的钩子切分为优先级批次
func batchByPriority(hooks []registration) []batch {
	if len(hooks) == 0 {
		return nil
	}

	var batches []batch
	current := batch{priority: hooks[0].priority}
	for _, h := range hooks {
		if h.priority != current.priority {
			batches = append(batches, current)
			current = batch{priority: h.priority}
		}
		current.hooks = append(current.hooks, h)
	}
	return append(batches, current)
}

// runBatch 并行执行同一优先级批次的钩子
func (m *Manager) runBatch(ctx context.Context, hooks []registration) []hookResult {
	resultChan := make(chan hookResult, len(hooks))

	for _, h := range hooks {
		go func(r registration) {
			hookCtx := ctx
			var cancel context.CancelFunc
			if m.config.HookTimeout > 0 {
				hookCtx, cancel = context.WithTimeout(ctx, m.config.HookTimeout)
				defer cancel()
			}

			start := time.Now()
			err := r.hook(hookCtx)
			resultChan <- hookResult{
				name:     r.name,
				err:      err,
				duration: time.Since(start),
			}
		}(h)
	}

	results := make([]hookResult, 0, len(hooks))
	for len(results) < len(hooks) {
		select {
		case result := <-resultChan:
			results = append(results, result)
		case <-ctx.Done():
			m.logger.Warn("Timeout waiting for hook batch",
				zap.Int("completed", len(results)),
				zap.Int("total", len(hooks)),
			)
			return results
		}
	}
	return results
}

// hookResult 钩子执行结果
type hookResult struct {
	name     string
	err      error
	duration time.Duration
}

// report 汇总关停结果
func (m *Manager) report(results []hookResult) {
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			m.logger.Error("Shutdown hook failed",
				zap.String("name", r.name),
				zap.Duration("duration", r.duration),
				zap.Error(r.err),
			)
			continue
		}
		m.logger.Info("Shutdown hook completed",
			zap.String("name", r.name),
			zap.Duration("duration", r.duration),
		)
		succeeded++
	}

	m.logger.Info("Shutdown summary",
		zap.Int("succeeded", succeeded),
		zap.Int("total", len(results)),
	)
}
