package database

import (
	"context"
	"errors"
	"time"

	"github.com/hl8/hl8-go-pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

/* ========================================================================
 * ZapGormLogger - GORM 日志适配器
 * ========================================================================
 * 职责: 将 GORM 的 SQL 日志输出到 zap，并附带隔离上下文标识字段，
 *       便于按租户/组织检索慢查询与错误 SQL
 * ======================================================================== */

// ZapGormLogger 实现 gorm logger.Interface
type ZapGormLogger struct {
	log *logger.Logger

	// SlowThreshold 慢查询阈值，超过则以 Warn 级别记录
	SlowThreshold time.Duration

	// IgnoreRecordNotFoundError 为 true 时不记录 ErrRecordNotFound
	IgnoreRecordNotFoundError bool

	level gormlogger.LogLevel
}

// NewZapGormLogger 创建 GORM 日志适配器
func NewZapGormLogger(log *logger.Logger) *ZapGormLogger {
	return &ZapGormLogger{
		log:                       log,
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
		level:                     gormlogger.Warn,
	}
}

// LogMode 实现 logger.Interface
func (l *ZapGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info 实现 logger.Interface
func (l *ZapGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.WithIsolation(ctx).Sugar().Infof(msg, args...)
	}
}

// Warn 实现 logger.Interface
func (l *ZapGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.WithIsolation(ctx).Sugar().Warnf(msg, args...)
	}
}

// Error 实现 logger.Interface
func (l *ZapGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.WithIsolation(ctx).Sugar().Errorf(msg, args...)
	}
}

// Trace 记录 SQL 执行详情
func (l *ZapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	zl := l.log.WithIsolation(ctx)

	switch {
	case err != nil && l.level >= gormlogger.Error &&
		!(l.IgnoreRecordNotFoundError && errors.Is(err, gorm.ErrRecordNotFound)):
		sql, rows := fc()
		zl.Error("sql error",
			zap.Error(err),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		zl.Warn("slow sql",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", l.SlowThreshold),
		)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		zl.Debug("sql trace",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	}
}
