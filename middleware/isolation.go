package middleware

import (
	"github.com/hl8/hl8-go-pkg/errors"
	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/metrics"
	"github.com/hl8/hl8-go-pkg/response"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	idgen "github.com/hl8/hl8-go-pkg/utils/id-generator/ulid"
	"go.uber.org/zap"
)

/* ========================================================================
 * Isolation Middleware - 数据隔离上下文中间件
 * ========================================================================
 * 职责: 从请求头解析租户/组织/部门/用户标识，构建隔离上下文并注入
 *       request context，供缓存、日志、仓储等下游组件读取
 * 请求头: x-tenant-id / x-organization-id / x-department-id / x-user-id
 * ======================================================================== */

// FallbackPolicy 隔离头缺失或非法时的处理策略
type FallbackPolicy string

const (
	// FallbackPlatform 回退到平台级上下文（默认）。回退会放大数据可见
	// 范围，因此总是记录 warning 日志和 fallback 指标。
	FallbackPlatform FallbackPolicy = "platform"
	// FallbackReject 拒绝请求，返回 400
	FallbackReject FallbackPolicy = "reject"
)

const isolationLocalKey = "hl8_isolation_ctx"

// IsolationConfig 隔离中间件配置
type IsolationConfig struct {
	// Policy 头解析失败时的策略: platform | reject，默认 platform
	Policy FallbackPolicy `yaml:"policy"`
	// ValidateUUID 要求所有标识符为合法 UUID
	ValidateUUID bool `yaml:"validate_uuid"`
}

// IsolationExtractor 解析隔离请求头的 Fiber 中间件
type IsolationExtractor struct {
	config IsolationConfig
	log    *logger.Logger
}

// NewIsolationExtractor 创建隔离中间件
func NewIsolationExtractor(cfg *IsolationConfig, log *logger.Logger) *IsolationExtractor {
	if cfg == nil {
		cfg = &IsolationConfig{}
	}
	config := *cfg
	if config.Policy == "" {
		config.Policy = FallbackPlatform
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &IsolationExtractor{config: config, log: log}
}

// Extract 返回 Fiber 中间件
func (e *IsolationExtractor) Extract() fiber.Handler {
	return func(c fiber.Ctx) error {
		ensureRequestID(c)

		ic, err := isolation.FromHeaderLookup(func(key string) string {
			return c.Get(key)
		})
		if err == nil && e.config.ValidateUUID {
			err = validateUUIDs(ic)
		}

		if err != nil {
			metrics.IsolationFallbackTotal.WithLabelValues("http", string(e.config.Policy)).Inc()

			if e.config.Policy == FallbackReject {
				e.log.Warn("isolation headers rejected",
					zap.Error(err),
					zap.String("path", c.Path()),
					zap.String("ip", c.IP()),
				)
				return response.Error(c, err)
			}

			// 降级为平台级上下文
			e.log.Warn("isolation headers invalid, degrading to platform scope",
				zap.Error(err),
				zap.String("path", c.Path()),
			)
			ic = isolation.Platform()
		}

		c.Locals(isolationLocalKey, ic)
		c.SetContext(isolation.WithContext(c.Context(), ic))
		return c.Next()
	}
}

// IsolationFromFiber 从 fiber.Ctx 读取隔离上下文
func IsolationFromFiber(c fiber.Ctx) (*isolation.Context, bool) {
	v := c.Locals(isolationLocalKey)
	if v == nil {
		return nil, false
	}
	ic, ok := v.(*isolation.Context)
	return ic, ok && ic != nil
}

// RequireTenant 要求请求携带租户上下文，否则返回 400
func RequireTenant() fiber.Handler {
	return func(c fiber.Ctx) error {
		ic, ok := IsolationFromFiber(c)
		if !ok || !ic.HasTenant() {
			return response.Error(c, errors.ErrInvalidTenantContext.WithDetail("missing", "tenant_id"))
		}
		return c.Next()
	}
}

func validateUUIDs(ic *isolation.Context) error {
	check := func(raw, field string) error {
		if raw == "" {
			return nil
		}
		if _, err := uuid.Parse(raw); err != nil {
			return errors.ErrInvalidArgument.WithDetail("field", field).WithDetail("value", raw)
		}
		return nil
	}
	if err := check(ic.TenantID().String(), "tenant_id"); err != nil {
		return err
	}
	if err := check(ic.OrganizationID().String(), "organization_id"); err != nil {
		return err
	}
	if err := check(ic.DepartmentID().String(), "department_id"); err != nil {
		return err
	}
	return check(ic.UserID().String(), "user_id")
}

// ensureRequestID 透传或生成请求 ID，并写回响应头
func ensureRequestID(c fiber.Ctx) {
	rid := c.Get(isolation.HeaderRequestID)
	if rid == "" {
		rid = idgen.GenerateString()
	}
	c.Set(isolation.HeaderRequestID, rid)
	c.Locals(isolation.HeaderRequestID, rid)
}
