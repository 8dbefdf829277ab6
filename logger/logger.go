package logger

import (
	"context"
	"fmt"
	"os"

	"github.com/hl8/hl8-go-pkg/isolation"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

/* ========================================================================
 * Logger - 统一日志组件
 * ========================================================================
 * 职责: 提供结构化日志能力，支持 JSON / Console 格式、文件滚动输出
 * 技术: Uber Zap + lumberjack
 * ======================================================================== */

// Config Logger 配置
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // 空/"stdout" 输出到标准输出，否则视为文件路径

	// 文件输出时的滚动参数 (lumberjack)
	MaxSizeMB  int  `yaml:"max_size_mb"`  // 单文件上限，默认 100
	MaxBackups int  `yaml:"max_backups"`  // 保留文件数，默认 10
	MaxAgeDays int  `yaml:"max_age_days"` // 保留天数，默认 30
	Compress   bool `yaml:"compress"`     // 是否压缩历史文件
}

// ValidateConfig 校验日志配置
func ValidateConfig(cfg Config) error {
	switch cfg.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", cfg.Level)
	}
	switch cfg.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", cfg.Format)
	}
	return nil
}

// Logger 封装 Zap Logger
type Logger struct {
	*zap.Logger
}

// NewLogger 初始化 Logger
func NewLogger(cfg Config) *Logger {
	// 解析日志级别，非法值回落到 info
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zap.InfoLevel
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	// 根据格式选择编码器
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writer zapcore.WriteSyncer
	if cfg.Output == "" || cfg.Output == "stdout" {
		writer = zapcore.AddSync(os.Stdout)
	} else {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 10
		}
		maxAge := cfg.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 30
		}
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		})
	}

	core := zapcore.NewCore(encoder, writer, level)

	logger := zap.New(core, zap.AddCaller())
	return &Logger{Logger: logger}
}

// NewNop 创建空日志器 (测试用)
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithIsolation 注入当前请求隔离上下文的标识字段
// 无隔离上下文时返回原 Logger
func (l *Logger) WithIsolation(ctx context.Context) *zap.Logger {
	ic, ok := isolation.FromContext(ctx)
	if !ok {
		return l.Logger
	}

	logCtx := ic.BuildLogContext()
	if len(logCtx) == 0 {
		return l.Logger
	}

	fields := make([]zap.Field, 0, len(logCtx))
	for k, v := range logCtx {
		fields = append(fields, zap.String(k, v))
	}
	return l.Logger.With(fields...)
}
