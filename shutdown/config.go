package shutdown

import "time"

/* ========================================================================
 * Shutdown Config - 优雅关停配置
 * ========================================================================
 * 职责: 定义优雅关停的配置与优先级常量
 * ======================================================================== */

// 优先级常量，数值越小越先执行。
// 入口层（HTTP/gRPC 服务器）先停止接收请求，再刷出消息队列，
// 最后关闭数据库与缓存连接。
const (
	PriorityFirst  = 0   // 停止接收新请求（HTTP/gRPC 监听器）
	PriorityHigh   = 25  // 排空消息队列生产者
	PriorityNormal = 50  // 业务组件默认优先级
	PriorityLow    = 75  // 数据库、缓存连接
	PriorityLast   = 100 // 日志刷盘等收尾工作
)

// Config 优雅关停配置
type Config struct {
	// Timeout 整体关停超时时间
	// 超时后放弃剩余钩子，即使它们尚未执行
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// HookTimeout 单个钩子的执行超时时间
	// 为 0 时不单独限制，只受整体超时约束
	HookTimeout time.Duration `mapstructure:"hook_timeout" yaml:"hook_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		HookTimeout: 10 * time.Second,
	}
}
