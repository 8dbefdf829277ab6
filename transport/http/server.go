package http

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/hl8/hl8-go-pkg/cache/redis"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/metrics"
	"github.com/hl8/hl8-go-pkg/middleware"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

/* ========================================================================
 * HTTP Server - Fiber v3 HTTP 服务器
 * ========================================================================
 * 职责: 提供 HTTP 服务，默认装配隔离上下文中间件、健康检查、指标暴露
 * 技术: Fiber v3
 * ======================================================================== */

// Config HTTP 服务器配置
type Config struct {
	Port               int           `mapstructure:"port" yaml:"port"`
	Host               string        `mapstructure:"host" yaml:"host"`
	AppName            string        `mapstructure:"app_name" yaml:"app_name"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout" yaml:"health_check_timeout"`

	// EnableRecover 是否启用 Panic 恢复中间件，默认 true。
	// 设为 false 可在开发/测试环境直接暴露 panic
	EnableRecover *bool `mapstructure:"enable_recover" yaml:"enable_recover"`

	// Listen 嵌套 ListenConfig 的可序列化配置项
	Listen ListenOptions `mapstructure:"listen" yaml:"listen"`
}

// ListenOptions 包含 Fiber ListenConfig 中可通过配置文件设置的字段。
// 函数类型的高级选项（TLSConfigFunc 等）通过 ListenConfigCustomizer 设置。
type ListenOptions struct {
	// 是否启用 Prefork 多进程模式，默认 false
	EnablePrefork bool `mapstructure:"enable_prefork" yaml:"enable_prefork"`

	// 是否禁用启动消息
	DisableStartupMessage bool `mapstructure:"disable_startup_message" yaml:"disable_startup_message"`

	// 是否打印所有路由
	EnablePrintRoutes bool `mapstructure:"enable_print_routes" yaml:"enable_print_routes"`

	// 监听网络类型（tcp, tcp4, tcp6, unix），默认 tcp4。
	// Prefork 模式下只能选择 tcp4 或 tcp6
	ListenerNetwork string `mapstructure:"listener_network" yaml:"listener_network"`

	// TLS 证书与私钥文件路径
	CertFile    string `mapstructure:"cert_file" yaml:"cert_file"`
	CertKeyFile string `mapstructure:"cert_key_file" yaml:"cert_key_file"`

	// mTLS 客户端证书文件路径
	CertClientFile string `mapstructure:"cert_client_file" yaml:"cert_client_file"`

	// 优雅关闭超时时间，缺省用 Fiber 默认值 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Unix Socket 文件权限模式，缺省用 Fiber 默认值 0770
	UnixSocketFileMode uint32 `mapstructure:"unix_socket_file_mode" yaml:"unix_socket_file_mode"`

	// TLS 最低版本: 771 (TLS 1.2), 772 (TLS 1.3)，缺省 TLS 1.2
	TLSMinVersion uint16 `mapstructure:"tls_min_version" yaml:"tls_min_version"`
}

// ListenConfigCustomizer 自定义 ListenConfig 中无法序列化的高级选项
type ListenConfigCustomizer func(*fiber.ListenConfig)

// AppConfigCustomizer 自定义 Fiber Config
type AppConfigCustomizer func(*fiber.Config)

type ServerParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config Config
	Logger *logger.Logger

	// DB 用于就绪探针检查，可选
	DB *gorm.DB `optional:"true"`

	// Cache 用于就绪探针检查，可选
	Cache *redis.Client `optional:"true"`

	// Isolation 隔离上下文提取中间件，提供时全局装配
	Isolation *middleware.IsolationExtractor `optional:"true"`

	// ErrorHandler 可选的 Fiber ErrorHandler，缺省使用统一错误响应处理器
	ErrorHandler fiber.ErrorHandler `optional:"true"`

	// ListenConfigCustomizer 可选的 ListenConfig 自定义函数
	ListenConfigCustomizer ListenConfigCustomizer `optional:"true"`

	// AppConfigCustomizer 可选的 Fiber Config 自定义函数
	AppConfigCustomizer AppConfigCustomizer `optional:"true"`
}

// NewHTTPServer 创建 HTTP 服务器并注册生命周期
func NewHTTPServer(p ServerParams) *fiber.App {
	readTimeout := p.Config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := p.Config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := p.Config.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	appName := p.Config.AppName
	if appName == "" {
		appName = "HL8 Go App"
	}

	appConfig := fiber.Config{
		AppName:      appName,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		ErrorHandler: middleware.NewErrorHandler(p.Logger),
	}

	if p.AppConfigCustomizer != nil {
		p.AppConfigCustomizer(&appConfig)
	}
	if p.ErrorHandler != nil {
		appConfig.ErrorHandler = p.ErrorHandler
	}

	app := fiber.New(appConfig)

	// Recover 必须在隔离中间件之前注册，panic 时才能兜底
	enableRecover := true
	if p.Config.EnableRecover != nil {
		enableRecover = *p.Config.EnableRecover
	}
	if enableRecover {
		app.Use(recoverer.New(recoverer.Config{
			EnableStackTrace: true,
			StackTraceHandler: func(c fiber.Ctx, e interface{}) {
				p.Logger.WithIsolation(c.Context()).Error("panic recovered",
					zap.Any("error", e),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
					zap.String("ip", c.IP()),
				)
			},
		}))
	}

	// 隔离上下文提取：所有业务路由都能从 c.Context() 拿到隔离标识
	if p.Isolation != nil {
		app.Use(p.Isolation.Extract())
	}

	healthCheckTimeout := p.Config.HealthCheckTimeout
	if healthCheckTimeout <= 0 {
		healthCheckTimeout = 2 * time.Second
	}
	registerHealthEndpoints(app, p.DB, p.Cache, healthCheckTimeout)

	metrics.RegisterMetricsEndpoint(app)

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			addr := fmt.Sprintf(":%d", p.Config.Port)
			if p.Config.Host != "" {
				addr = fmt.Sprintf("%s:%d", p.Config.Host, p.Config.Port)
			}

			listenConfig := buildListenConfig(p.Config.Listen)
			if p.ListenConfigCustomizer != nil {
				p.ListenConfigCustomizer(&listenConfig)
			}

			// 先手动绑定端口：启动失败要在 OnStart 里暴露，而不是后台 goroutine
			listener, err := createListener(addr, listenConfig)
			if err != nil {
				p.Logger.Error("bind http listener", zap.Error(err), zap.String("addr", addr))
				return fmt.Errorf("bind %s: %w", addr, err)
			}

			errChan := make(chan error, 1)
			go func() {
				p.Logger.Info("http server starting", zap.String("addr", addr))
				if err := app.Listener(listener, listenConfig); err != nil {
					p.Logger.Error("http server exited", zap.Error(err))
					errChan <- err
				}
			}()

			select {
			case err := <-errChan:
				return err
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("http server stopping")
			return app.ShutdownWithContext(ctx)
		},
	})

	return app
}

// buildListenConfig 根据 ListenOptions 构建 Fiber ListenConfig 并应用默认值
func buildListenConfig(opts ListenOptions) fiber.ListenConfig {
	config := fiber.ListenConfig{
		EnablePrefork:         opts.EnablePrefork,
		DisableStartupMessage: opts.DisableStartupMessage,
		EnablePrintRoutes:     opts.EnablePrintRoutes,
		CertFile:              opts.CertFile,
		CertKeyFile:           opts.CertKeyFile,
		CertClientFile:        opts.CertClientFile,
	}

	config.ListenerNetwork = opts.ListenerNetwork
	if config.ListenerNetwork == "" {
		config.ListenerNetwork = "tcp4"
	}
	if opts.ShutdownTimeout > 0 {
		config.ShutdownTimeout = opts.ShutdownTimeout
	}
	if opts.UnixSocketFileMode > 0 {
		config.UnixSocketFileMode = os.FileMode(opts.UnixSocketFileMode)
	}
	if opts.TLSMinVersion > 0 {
		config.TLSMinVersion = opts.TLSMinVersion
	}

	return config
}

/* ========================================================================
 * Health Check Endpoints
 * ========================================================================
 * /healthz - 存活探针，进程能响应即返回 200
 * /readyz  - 就绪探针，检查数据库与缓存依赖
 * ======================================================================== */

func registerHealthEndpoints(app *fiber.App, db *gorm.DB, cache *redis.Client, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	app.Get("/readyz", func(c fiber.Ctx) error {
		checks := make(map[string]string)
		healthy := true

		if db != nil {
			if err := pingDatabase(db, timeout); err != nil {
				checks["database"] = "error: " + err.Error()
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}

		if cache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := cache.Ping(ctx); err != nil {
				checks["cache"] = "error: " + err.Error()
				healthy = false
			} else {
				checks["cache"] = "ok"
			}
			cancel()
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		checks["memory_alloc_mb"] = fmt.Sprintf("%.2f", float64(m.Alloc)/1024/1024)
		checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

		status := "ok"
		statusCode := fiber.StatusOK
		if !healthy {
			status = "unhealthy"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
			"checks": checks,
		})
	})
}

func pingDatabase(db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
