package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hl8/hl8-go-pkg/database"
	"github.com/hl8/hl8-go-pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

/* ========================================================================
 * PostgreSQL - 关系型数据库连接
 * ========================================================================
 * 职责: 提供 PostgreSQL 连接池、GORM 集成，生命周期由 fx 管理
 * 技术: gorm.io/driver/postgres
 * ======================================================================== */

// Config PostgreSQL 配置
type Config struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	DBName          string        `mapstructure:"dbname" yaml:"dbname"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	Schema          string        `mapstructure:"schema" yaml:"schema"`                          // 数据库 schema，默认 public
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`          // 最大空闲连接数
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`          // 最大打开连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`    // 连接最大生命周期
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`  // 空闲连接最大时间
}

// DSN 生成 PostgreSQL 连接串
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
	if c.Schema != "" {
		dsn = fmt.Sprintf("%s search_path=%s", dsn, c.Schema)
	}
	return dsn
}

// Params NewDB 依赖项
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config Config
	Logger *logger.Logger
}

// NewDB 初始化 Postgres 连接并注册启停钩子
func NewDB(p Params) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: p.Config.DSN(),
	}), &gorm.Config{
		Logger: database.NewZapGormLogger(p.Logger),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxIdleConns := p.Config.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 10
	}
	maxOpenConns := p.Config.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	connMaxLifetime := p.Config.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 1 * time.Hour
	}
	connMaxIdleTime := p.Config.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 20 * time.Minute
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if p.Lc != nil {
		p.Lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := sqlDB.PingContext(ctx); err != nil {
					return fmt.Errorf("ping postgres: %w", err)
				}
				p.Logger.Info("postgres connected", zap.String("dsn", sanitizeDSN(p.Config.DSN())))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				p.Logger.Info("closing postgres connections")
				if err := sqlDB.Close(); err != nil {
					p.Logger.Warn("close postgres", zap.Error(err))
					return err
				}
				return nil
			},
		})
	}

	return db, nil
}

// sanitizeDSN 屏蔽 DSN 中的密码，用于日志输出。
// 同时支持 URL 形式与 keyword=value 形式。
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
		return u.String()
	}

	parts := strings.Fields(dsn)
	for i, part := range parts {
		if strings.HasPrefix(part, "password=") {
			parts[i] = "password=***"
		}
	}
	return strings.Join(parts, " ")
}
