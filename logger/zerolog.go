package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/polyorm/polyorm/utils"
)

// ZerologLogger implements Interface using zerolog
type ZerologLogger struct {
	Config
	Logger zerolog.Logger
}

// NewZerologLogger creates a new logger using zerolog
func NewZerologLogger(logger zerolog.Logger, config Config) Interface {
	return &ZerologLogger{Config: config, Logger: logger}
}

// NewZerologLoggerWithConfig creates a console zerolog logger unless a context is given
func NewZerologLoggerWithConfig(config Config, output ...zerolog.Context) Interface {
	if len(output) > 0 {
		return NewZerologLogger(output[0].Logger(), config)
	}

	consoleWriter := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stdout
		w.TimeFormat = time.RFC3339
	})
	logger := zerolog.New(consoleWriter).
		Level(ZerologLevel(config.LogLevel)).
		With().
		Timestamp().
		Logger()
	return NewZerologLogger(logger, config)
}

// LogMode sets the log level
func (l *ZerologLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// ForUnitOfWork returns a child logger whose context carries uow and actor
func (l *ZerologLogger) ForUnitOfWork(id, actor string) Interface {
	child := l.Logger.With().Str("uow", id)
	if actor != "" {
		child = child.Str("actor", actor)
	}

	newLogger := *l
	newLogger.Logger = child.Logger()
	return &newLogger
}

func send(ctx context.Context, event *zerolog.Event, msg string) {
	event = event.Str("file", utils.FileWithLineNum())
	if ctx != nil {
		event = event.Ctx(ctx)
	}
	event.Msg(msg)
}

// Info logs info messages
func (l *ZerologLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		send(ctx, l.Logger.Info().Interface("data", data), msg)
	}
}

// Warn logs warning messages
func (l *ZerologLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		send(ctx, l.Logger.Warn().Interface("data", data), msg)
	}
}

// Error logs error messages
func (l *ZerologLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		send(ctx, l.Logger.Error().Interface("data", data), msg)
	}
}

// Trace logs one statement with its duration and affected rows
func (l *ZerologLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	var (
		event *zerolog.Event
		msg   = "SQL executed"
	)
	switch l.classify(elapsed, err) {
	case traceFailed:
		event, msg = l.Logger.Error().Err(err), "SQL failed"
	case traceSlow:
		event, msg = l.Logger.Warn().Dur("slow_threshold", l.SlowThreshold), "SLOW SQL executed"
	case traceExecuted:
		event = l.Logger.Info()
	default:
		return
	}

	sql, rows := fc()
	event = event.Float64("elapsed_ms", milliseconds(elapsed)).Str("sql", sql)
	if rows != -1 {
		event = event.Int64("rows", rows)
	}
	send(ctx, event, msg)
}

// ZerologLevel converts LogLevel to zerolog.Level
func ZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case Silent:
		return zerolog.Disabled
	case Error:
		return zerolog.ErrorLevel
	case Warn:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
