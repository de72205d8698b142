package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Logger 持有 zap.Logger 及其可动态调整的级别
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// NewLogger 创建新的日志实例
func NewLogger(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	format := cfg.Format
	if format != "console" {
		format = "json"
	}
	output := cfg.OutputPath
	if output == "" {
		output = "stdout"
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	config := zap.Config{
		Level:            level,
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	z, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z, level: level}, nil
}

// SetLevel 运行时修改日志级别，无法解析时返回 false
func (l *Logger) SetLevel(s string) bool {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return false
	}
	l.level.SetLevel(lvl)
	return true
}

// Level 当前级别
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
