package metrics

import (
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

/* ========================================================================
 * Prometheus Metrics - 可观测性指标
 * ========================================================================
 * 职责: 提供 Prometheus 指标注册和暴露
 * 指标按隔离层级 (platform/tenant/org/dept/user) 打标
 * ======================================================================== */

var (
	// HTTPRequestDuration HTTP 请求延迟
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hl8",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestTotal HTTP 请求总数
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl8",
			Subsystem: "http",
			Name:      "request_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// GRPCRequestTotal gRPC 请求总数
	GRPCRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl8",
			Subsystem: "grpc",
			Name:      "request_total",
			Help:      "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	// CacheRequestTotal 缓存访问次数，hit 标签区分命中/未命中
	CacheRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl8",
			Subsystem: "cache",
			Name:      "request_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"level", "namespace", "hit"}, // hit: true, false
	)

	// CacheInvalidationTotal 按模式批量失效的键数量
	CacheInvalidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl8",
			Subsystem: "cache",
			Name:      "invalidation_total",
			Help:      "Total number of cache keys removed by pattern invalidation",
		},
		[]string{"level"},
	)

	// IsolationAccessDeniedTotal 隔离访问控制拒绝次数
	IsolationAccessDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl8",
			Subsystem: "isolation",
			Name:      "access_denied_total",
			Help:      "Total number of isolation access control denials",
		},
		[]string{"level"},
	)

	// IsolationFallbackTotal 隔离头解析失败后回退的次数
	// 回退到平台级上下文会放大可见范围，运维需要监控此指标
	IsolationFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl8",
			Subsystem: "isolation",
			Name:      "fallback_total",
			Help:      "Total number of isolation header parse failures handled by fallback policy",
		},
		[]string{"transport", "policy"},
	)
)

// RegisterMetricsEndpoint 注册 /metrics 端点
func RegisterMetricsEndpoint(app *fiber.App) {
	// 使用 fasthttpadaptor 将 promhttp.Handler 适配到 Fiber
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c fiber.Ctx) error {
		handler(c.RequestCtx())
		return nil
	})
}

// NewCounter 创建自定义 Counter
func NewCounter(namespace, subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewGauge 创建自定义 Gauge
func NewGauge(namespace, subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}
