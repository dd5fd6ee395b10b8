// Package elog provides the engine's structured logging: a global logrus
// instance with stderr/stdout stream separation, and a context-carrying
// wrapper with timing helpers for wrapping maintenance and query steps.
package elog

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes error-level log lines to stderr and everything
// else to stdout, so container log collectors can apply separate
// retention/alerting rules per stream.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Level mirrors logrus's levels under a package-local name so callers
// configuring the engine don't need to import logrus directly.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures the base logger.
type Config struct {
	Level     Level
	Format    string // "json" or "text"
	AddCaller bool
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "json"}
}

// New builds a base *logrus.Logger with the output splitter installed.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(OutputSplitter{})
	return logger
}

// Logger is the process-wide default, ready to use without configuration.
var Logger = New(DefaultConfig())

// ContextLogger carries a base set of structured fields across a request
// or maintenance step.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// With returns a ContextLogger rooted at logger with the given base fields.
func With(logger *logrus.Logger, fields map[string]any) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

// WithField returns a copy of cl with one extra field set.
func (cl *ContextLogger) WithField(key string, value any) *ContextLogger {
	next := make(logrus.Fields, len(cl.fields)+1)
	for k, v := range cl.fields {
		next[k] = v
	}
	next[key] = value
	return &ContextLogger{logger: cl.logger, fields: next}
}

// WithError attaches an error's message as a field.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

// WithContext pulls well-known trace identifiers out of ctx, if present.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	next := cl
	if v := ctx.Value("trace_id"); v != nil {
		next = next.WithField("trace_id", v)
	}
	if v := ctx.Value("operation_id"); v != nil {
		next = next.WithField("operation_id", v)
	}
	return next
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

// LogOperation logs the start/end of fn with timing, propagating its error.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Info("operation started")

	err := fn()

	entry := logger.WithField("operation", operation).WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Info("operation completed")
	return nil
}

// LogDuration returns a function to defer that logs how long the caller's
// scope took to run.
func LogDuration(logger *ContextLogger, operation string) func() {
	start := time.Now()
	return func() {
		logger.WithField("operation", operation).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("operation completed")
	}
}

// LogPanic recovers a panic in the calling goroutine and logs it with a
// stack trace; it must be called via defer.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithField("panic", r).WithField("stacktrace", string(buf[:n])).Error("panic recovered")
	}
}
