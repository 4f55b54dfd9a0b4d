// Package logger provides the runtime's structured logging facade.
//
// It wraps log/slog behind a swappable singleton so that every other
// package can call the package-level Debug/Info/Warn/Error functions
// without threading a *slog.Logger through every constructor, while tests
// and embedders can still replace the singleton for isolated assertions.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(New())
}

type format int

const (
	formatText format = iota
	formatJSON
)

type options struct {
	output io.Writer
	level  slog.Level
	format format
}

// Option configures a logger built with New.
type Option func(*options)

// WithOutput directs log output to w instead of os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithLevel sets the minimum enabled log level.
func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

// WithJSON selects structured JSON output instead of console text.
func WithJSON() Option {
	return func(o *options) { o.format = formatJSON }
}

// New builds a *slog.Logger from options, deciding text-vs-JSON the way the
// runtime's environment switch does: unstructured console output by
// default (developer-friendly), JSON when explicitly requested.
func New(opts ...Option) *slog.Logger {
	o := &options{output: os.Stderr, level: slog.LevelInfo, format: formatText}
	for _, opt := range opts {
		opt(o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}
	var handler slog.Handler
	if o.format == formatJSON {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}
	return slog.New(handler)
}

// unstructuredLogsWithEnv decides the default format from an env reader,
// mirroring the UNSTRUCTURED_LOGS=false (structured JSON, production) /
// unset-or-true (console text, development) convention.
func unstructuredLogsWithEnv(getenv func(string) string) bool {
	v := getenv("UNSTRUCTURED_LOGS")
	switch v {
	case "false":
		return false
	case "true", "":
		return true
	default:
		return true
	}
}

// Initialize rebuilds the singleton logger from the process environment.
func Initialize() {
	InitializeWithEnv(os.Getenv)
}

// InitializeWithEnv rebuilds the singleton logger using getenv as the
// source of UNSTRUCTURED_LOGS, for testability.
func InitializeWithEnv(getenv func(string) string) {
	if unstructuredLogsWithEnv(getenv) {
		singleton.Store(New())
	} else {
		singleton.Store(New(WithJSON()))
	}
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// SetDefault replaces the singleton logger, for embedders wiring their own
// handler and for tests.
func SetDefault(l *slog.Logger) {
	singleton.Store(l)
}

// NewLogr adapts the singleton logger to the go-logr/logr.Logger interface
// expected by components written against that ecosystem convention.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

func logKV(ctx context.Context, level slog.Level, msg string, kv ...any) {
	Get().Log(ctx, level, msg, kv...)
}

// Debug logs at debug level.
func Debug(msg string) { Get().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { Get().Debug(fmt.Sprintf(format, args...)) }

// Debugw logs a message with structured key-value pairs at debug level.
func Debugw(msg string, kv ...any) { logKV(context.Background(), slog.LevelDebug, msg, kv...) }

// Info logs at info level.
func Info(msg string) { Get().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { Get().Info(fmt.Sprintf(format, args...)) }

// Infow logs a message with structured key-value pairs at info level.
func Infow(msg string, kv ...any) { logKV(context.Background(), slog.LevelInfo, msg, kv...) }

// Warn logs at warn level.
func Warn(msg string) { Get().Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { Get().Warn(fmt.Sprintf(format, args...)) }

// Warnw logs a message with structured key-value pairs at warn level.
func Warnw(msg string, kv ...any) { logKV(context.Background(), slog.LevelWarn, msg, kv...) }

// Error logs at error level.
func Error(msg string) { Get().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// Errorw logs a message with structured key-value pairs at error level.
func Errorw(msg string, kv ...any) { logKV(context.Background(), slog.LevelError, msg, kv...) }

// DPanic logs at error level then panics, matching the teacher's
// always-panic DPanic/Panic family (the runtime has no separate
// "development vs production" build mode to gate the panic on).
func DPanic(msg string) { Panic(msg) }

// DPanicf is the formatted form of DPanic.
func DPanicf(format string, args ...any) { Panicf(format, args...) }

// DPanicw is the structured form of DPanic.
func DPanicw(msg string, kv ...any) { Panicw(msg, kv...) }

// Panic logs at error level then panics with msg.
func Panic(msg string) {
	Get().Error(msg)
	panic(msg)
}

// Panicf logs a formatted message at error level then panics.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Get().Error(msg)
	panic(msg)
}

// Panicw logs a structured message at error level then panics.
func Panicw(msg string, kv ...any) {
	logKV(context.Background(), slog.LevelError, msg, kv...)
	panic(msg)
}
