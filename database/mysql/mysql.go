package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/hl8/hl8-go-pkg/database"
	"github.com/hl8/hl8-go-pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

/* ========================================================================
 * MySQL - 关系型数据库连接
 * ========================================================================
 * 职责: 提供 MySQL 连接池、GORM 集成，生命周期由 fx 管理
 * 技术: gorm.io/driver/mysql
 * ======================================================================== */

// Config MySQL 配置
type Config struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	DBName          string        `mapstructure:"dbname" yaml:"dbname"`
	Charset         string        `mapstructure:"charset" yaml:"charset"`                        // 字符集，默认 utf8mb4
	Loc             string        `mapstructure:"loc" yaml:"loc"`                                // 时区，默认 Local
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`          // 最大空闲连接数
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`          // 最大打开连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`    // 连接最大生命周期
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`  // 空闲连接最大时间
}

// DSN 生成 MySQL 连接串，缺省项使用默认值
func (c Config) DSN() string {
	charset := c.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	loc := c.Loc
	if loc == "" {
		loc = "Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, charset, loc)
}

// Params NewDB 依赖项
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config Config
	Logger *logger.Logger
}

// NewDB 初始化 MySQL 连接并注册启停钩子
func NewDB(p Params) (*gorm.DB, error) {
	db, err := open(p.Config, p.Logger)
	if err != nil {
		return nil, err
	}
	registerHooks(p.Lc, db, p.Logger)
	return db, nil
}

func open(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: database.NewZapGormLogger(log),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 10
	}
	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 1 * time.Hour
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 20 * time.Minute
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return db, nil
}

func registerHooks(lc fx.Lifecycle, db *gorm.DB, log *logger.Logger) {
	if lc == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("ping mysql: %w", err)
			}
			log.Info("mysql connected")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			log.Info("closing mysql connections")
			if err := sqlDB.Close(); err != nil {
				log.Warn("close mysql", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
