package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/polyorm/polyorm/utils"
)

// ZapLogger implements Interface using zap
type ZapLogger struct {
	Config
	Logger *zap.Logger
}

// NewZapLogger creates a new logger using zap
func NewZapLogger(logger *zap.Logger, config Config) Interface {
	return &ZapLogger{Config: config, Logger: logger}
}

// NewZapLoggerWithConfig builds a zap production logger at the configured level
func NewZapLoggerWithConfig(config Config, zapConfig ...zap.Config) Interface {
	var zapCfg zap.Config
	if len(zapConfig) > 0 {
		zapCfg = zapConfig[0]
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(ZapLevel(config.LogLevel))
	}

	logger, err := zapCfg.Build()
	if err != nil {
		// Fallback to development config
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(ZapLevel(config.LogLevel))
		logger, _ = zapCfg.Build()
	}

	return NewZapLogger(logger, config)
}

// LogMode sets the log level
func (l *ZapLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// ForUnitOfWork returns a child logger carrying the uow and actor fields
func (l *ZapLogger) ForUnitOfWork(id, actor string) Interface {
	fields := []zap.Field{zap.String("uow", id)}
	if actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}

	newLogger := *l
	newLogger.Logger = l.Logger.With(fields...)
	return &newLogger
}

func (l *ZapLogger) log(level zapcore.Level, msg string, fields ...zap.Field) {
	if ce := l.Logger.Check(level, msg); ce != nil {
		ce.Write(append(fields, zap.String("file", utils.FileWithLineNum()))...)
	}
}

// Info logs info messages
func (l *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.log(zapcore.InfoLevel, msg, zap.Any("data", data))
	}
}

// Warn logs warning messages
func (l *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.log(zapcore.WarnLevel, msg, zap.Any("data", data))
	}
}

// Error logs error messages
func (l *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.log(zapcore.ErrorLevel, msg, zap.Any("data", data))
	}
}

// Trace logs one statement with its duration and affected rows
func (l *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	outcome := l.classify(elapsed, err)
	if outcome == traceSkipped {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{zap.Float64("elapsed_ms", milliseconds(elapsed)), zap.String("sql", sql)}
	if rows != -1 {
		fields = append(fields, zap.Int64("rows", rows))
	}

	switch outcome {
	case traceFailed:
		l.log(zapcore.ErrorLevel, "SQL failed", append(fields, zap.Error(err))...)
	case traceSlow:
		l.log(zapcore.WarnLevel, "SLOW SQL executed", append(fields, zap.Duration("slow_threshold", l.SlowThreshold))...)
	default:
		l.log(zapcore.InfoLevel, "SQL executed", fields...)
	}
}

// ZapLevel converts LogLevel to zapcore.Level
func ZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case Silent:
		return zapcore.DPanicLevel // Use DPanic for silent to avoid actual logging
	case Error:
		return zapcore.ErrorLevel
	case Warn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
