package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polyorm/polyorm/utils"
)

// LogrusLogger implements Interface using logrus
type LogrusLogger struct {
	Config
	Logger *logrus.Logger

	// fields are attached to every entry, set by ForUnitOfWork
	fields logrus.Fields
}

// NewLogrusLogger creates a new logger using logrus
func NewLogrusLogger(logger *logrus.Logger, config Config) Interface {
	return &LogrusLogger{Config: config, Logger: logger}
}

// LogMode sets the log level
func (l *LogrusLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// ForUnitOfWork returns a logger whose entries carry uow and actor
func (l *LogrusLogger) ForUnitOfWork(id, actor string) Interface {
	fields := logrus.Fields{"uow": id}
	if actor != "" {
		fields["actor"] = actor
	}

	newLogger := *l
	newLogger.fields = fields
	return &newLogger
}

func (l *LogrusLogger) entry(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithFields(l.fields).WithFields(fields).WithField("file", utils.FileWithLineNum())
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	return entry
}

// Info logs info messages
func (l *LogrusLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.entry(ctx, logrus.Fields{"data": data}).Info(msg)
	}
}

// Warn logs warning messages
func (l *LogrusLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.entry(ctx, logrus.Fields{"data": data}).Warn(msg)
	}
}

// Error logs error messages
func (l *LogrusLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.entry(ctx, logrus.Fields{"data": data}).Error(msg)
	}
}

// Trace logs one statement with its duration and affected rows
func (l *LogrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	outcome := l.classify(elapsed, err)
	if outcome == traceSkipped {
		return
	}

	sql, rows := fc()
	fields := logrus.Fields{"elapsed_ms": milliseconds(elapsed), "sql": sql}
	if rows != -1 {
		fields["rows"] = rows
	}

	switch outcome {
	case traceFailed:
		fields[logrus.ErrorKey] = err.Error()
		l.entry(ctx, fields).Error("SQL failed")
	case traceSlow:
		fields["slow_threshold"] = l.SlowThreshold.String()
		l.entry(ctx, fields).Warn("SLOW SQL executed")
	default:
		l.entry(ctx, fields).Info("SQL executed")
	}
}

// LogrusLevel converts LogLevel to logrus.Level
func LogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case Silent:
		return logrus.PanicLevel
	case Error:
		return logrus.ErrorLevel
	case Warn:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}
