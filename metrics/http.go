package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMiddlewareConfig configures the HTTP metrics middleware.
// Zero value uses the package-level HTTP collectors.
type HTTPMiddlewareConfig struct {
	// RequestTotal uses labels: method, path, status.
	RequestTotal *prometheus.CounterVec

	// RequestDuration uses labels: method, path, status.
	RequestDuration *prometheus.HistogramVec

	// Skipper skips recording for matching requests (health probes etc).
	Skipper func(fiber.Ctx) bool

	// DisableRoutePath uses the raw request path instead of the Fiber
	// route pattern. Raw paths can explode label cardinality when they
	// embed tenant or resource IDs.
	DisableRoutePath bool

	// NormalizePath optionally rewrites the final path label.
	NormalizePath func(string) string
}

// HTTPMetricsMiddleware records request count and latency per route.
func HTTPMetricsMiddleware(cfg *HTTPMiddlewareConfig) fiber.Handler {
	config := HTTPMiddlewareConfig{}
	if cfg != nil {
		config = *cfg
	}
	if config.RequestTotal == nil {
		config.RequestTotal = HTTPRequestTotal
	}
	if config.RequestDuration == nil {
		config.RequestDuration = HTTPRequestDuration
	}

	return func(c fiber.Ctx) error {
		if config.Skipper != nil && config.Skipper(c) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		method := c.Method()
		statusLabel := strconv.Itoa(c.Response().StatusCode())
		path := routeLabel(c, config.DisableRoutePath)
		if config.NormalizePath != nil {
			path = config.NormalizePath(path)
		}

		config.RequestTotal.WithLabelValues(method, path, statusLabel).Inc()
		config.RequestDuration.WithLabelValues(method, path, statusLabel).Observe(time.Since(start).Seconds())

		return err
	}
}

func routeLabel(c fiber.Ctx, disableRoutePath bool) string {
	if !disableRoutePath {
		if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
			return route.Path
		}
	}
	return c.Path()
}
