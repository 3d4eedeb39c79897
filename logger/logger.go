package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/polyorm/polyorm/utils"
)

// ErrObjectNotFound object not found error
var ErrObjectNotFound = errors.New("object not found")

// Colors
const (
	Reset       = "\033[0m"
	Red         = "\033[31m"
	Green       = "\033[32m"
	Yellow      = "\033[33m"
	Magenta     = "\033[35m"
	BlueBold    = "\033[34;1m"
	MagentaBold = "\033[35;1m"
	RedBold     = "\033[31;1m"
	YellowBold  = "\033[33;1m"
)

// LogLevel log level
type LogLevel int

const (
	// Silent silent log level
	Silent LogLevel = iota + 1
	// Error error log level
	Error
	// Warn warn log level
	Warn
	// Info info log level
	Info
)

// ParseLevel maps "silent", "error", "warn" and "info" to a LogLevel
func ParseLevel(s string) (LogLevel, bool) {
	switch s {
	case "silent":
		return Silent, true
	case "error":
		return Error, true
	case "warn":
		return Warn, true
	case "info":
		return Info, true
	}
	return 0, false
}

// DefaultLogLevel is read from POLYORM_LOG_LEVEL, Warn when unset
var DefaultLogLevel = levelFromEnv()

func levelFromEnv() LogLevel {
	if level, ok := ParseLevel(os.Getenv("POLYORM_LOG_LEVEL")); ok {
		return level
	}
	return Warn
}

// Writer log writer interface
type Writer interface {
	Printf(string, ...interface{})
}

// Config logger config
type Config struct {
	SlowThreshold             time.Duration
	Colorful                  bool
	IgnoreObjectNotFoundError bool
	ParameterizedQueries      bool
	LogLevel                  LogLevel
}

// Interface logger interface
type Interface interface {
	LogMode(LogLevel) Interface
	Info(context.Context, string, ...interface{})
	Warn(context.Context, string, ...interface{})
	Error(context.Context, string, ...interface{})
	Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error)
}

// ParamsFilter is implemented by loggers that may hide statement parameters
type ParamsFilter interface {
	ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{})
}

// Scoper is implemented by loggers that bind the id and actor of one unit
// of work once; every entry of the returned logger carries them
type Scoper interface {
	ForUnitOfWork(id, actor string) Interface
}

// ParamsFilter drops the parameters in parameterized mode
func (c Config) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if c.ParameterizedQueries {
		return sql, nil
	}
	return sql, params
}

type traceOutcome int

const (
	traceSkipped traceOutcome = iota
	traceFailed
	traceSlow
	traceExecuted
)

// classify decides how a finished statement is reported
func (c Config) classify(elapsed time.Duration, err error) traceOutcome {
	switch {
	case c.LogLevel <= Silent:
		return traceSkipped
	case err != nil && (!c.IgnoreObjectNotFoundError || !errors.Is(err, ErrObjectNotFound)):
		return traceFailed
	case c.SlowThreshold != 0 && elapsed > c.SlowThreshold && c.LogLevel >= Warn:
		return traceSlow
	case c.LogLevel >= Info:
		return traceExecuted
	}
	return traceSkipped
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

var (
	// Discard logger will print any log to io.Discard
	Discard = New(log.New(io.Discard, "", log.LstdFlags), Config{})
	// Default default logger
	Default = New(log.New(os.Stdout, "\r\n", log.LstdFlags), Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  DefaultLogLevel,
		IgnoreObjectNotFoundError: false,
		Colorful:                  !utils.CheckTruth(os.Getenv("NO_COLOR")),
	})
)

type unitOfWorkKey struct{}

// WithUnitOfWork tags ctx with a unit of work id, picked up by every adapter
func WithUnitOfWork(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, unitOfWorkKey{}, id)
}

// UnitOfWorkID returns the unit of work id stored in ctx
func UnitOfWorkID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(unitOfWorkKey{}).(string)
	return id
}

// New initialize logger
func New(writer Writer, config Config) Interface {
	var (
		infoStr      = "%s\n[info] "
		warnStr      = "%s\n[warn] "
		errStr       = "%s\n[error] "
		traceStr     = "%s [%s]\n[%.3fms] [rows:%v] %s"
		traceWarnStr = "%s [%s] %s\n[%.3fms] [rows:%v] %s"
		traceErrStr  = "%s [%s] %s\n[%.3fms] [rows:%v] %s"
	)

	if config.Colorful {
		infoStr = Green + "%s\n" + Reset + Green + "[info] " + Reset
		warnStr = BlueBold + "%s\n" + Reset + Magenta + "[warn] " + Reset
		errStr = Magenta + "%s\n" + Reset + Red + "[error] " + Reset
		traceStr = Green + "%s " + Reset + Magenta + "[%s]" + Reset + "\n" + Yellow + "[%.3fms] " + BlueBold + "[rows:%v]" + Reset + " %s"
		traceWarnStr = Green + "%s " + Magenta + "[%s] " + Yellow + "%s\n" + Reset + RedBold + "[%.3fms] " + Yellow + "[rows:%v]" + Magenta + " %s" + Reset
		traceErrStr = RedBold + "%s " + Magenta + "[%s] " + MagentaBold + "%s\n" + Reset + Yellow + "[%.3fms] " + BlueBold + "[rows:%v]" + Reset + " %s"
	}

	return &logger{
		Writer:       writer,
		Config:       config,
		infoStr:      infoStr,
		warnStr:      warnStr,
		errStr:       errStr,
		traceStr:     traceStr,
		traceWarnStr: traceWarnStr,
		traceErrStr:  traceErrStr,
	}
}

type logger struct {
	Writer
	Config
	infoStr, warnStr, errStr            string
	traceStr, traceErrStr, traceWarnStr string
	scope                               string
}

// LogMode log mode
func (l *logger) LogMode(level LogLevel) Interface {
	newlogger := *l
	newlogger.LogLevel = level
	return &newlogger
}

// ForUnitOfWork prints id, and actor when there is one, with every statement
func (l *logger) ForUnitOfWork(id, actor string) Interface {
	newlogger := *l
	newlogger.scope = id
	if actor != "" {
		newlogger.scope += " " + actor
	}
	return &newlogger
}

// Info print info
func (l *logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.Printf(l.infoStr+msg, append([]interface{}{utils.FileWithLineNum()}, data...)...)
	}
}

// Warn print warn messages
func (l *logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.Printf(l.warnStr+msg, append([]interface{}{utils.FileWithLineNum()}, data...)...)
	}
}

// Error print error messages
func (l *logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.Printf(l.errStr+msg, append([]interface{}{utils.FileWithLineNum()}, data...)...)
	}
}

// Trace print sql message
func (l *logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	outcome := l.classify(elapsed, err)
	if outcome == traceSkipped {
		return
	}

	scope := l.scope
	if scope == "" {
		scope = UnitOfWorkID(ctx)
	}

	sql, rows := fc()
	switch outcome {
	case traceFailed:
		l.Printf(l.traceErrStr, utils.FileWithLineNum(), scope, err, milliseconds(elapsed), rowsString(rows), sql)
	case traceSlow:
		slowLog := fmt.Sprintf("SLOW SQL >= %v", l.SlowThreshold)
		l.Printf(l.traceWarnStr, utils.FileWithLineNum(), scope, slowLog, milliseconds(elapsed), rowsString(rows), sql)
	default:
		l.Printf(l.traceStr, utils.FileWithLineNum(), scope, milliseconds(elapsed), rowsString(rows), sql)
	}
}

func rowsString(rows int64) interface{} {
	if rows == -1 {
		return "-"
	}
	return rows
}
