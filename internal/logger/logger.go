// Package logger provides a simple logging interface for nsocmd components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation. The default
// implementation is backed by zap and writes to stderr.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugEnv enables debug logging when set to any non-empty value.
const DebugEnv = "NSOCMD_DEBUG"

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	// With returns a logger that adds the key/value pairs to every message.
	With(keysAndValues ...interface{}) Logger
}

// Options configures a zap-backed logger.
type Options struct {
	// Debug lowers the level to debug. NSOCMD_DEBUG also enables it.
	Debug bool
	// Format is "console" (default) or "json".
	Format string
	// Name is attached as the logger name (e.g. "engine").
	Name string
	// Output defaults to stderr.
	Output io.Writer
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a zap-backed Logger from opts.
func New(opts Options) Logger {
	level := zapcore.InfoLevel
	if opts.Debug || os.Getenv(DebugEnv) != "" {
		level = zapcore.DebugLevel
	}

	var enc zapcore.Encoder
	if opts.Format == "json" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.Output != nil {
		sink = zapcore.AddSync(opts.Output)
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	l := zap.New(zapcore.NewCore(enc, sink, level))
	if opts.Name != "" {
		l = l.Named(opts.Name)
	}
	return &zapLogger{s: l.Sugar()}
}

// NewEnvLogger creates a console logger that respects the NSOCMD_DEBUG
// environment variable. The name is attached to every message (e.g. "sshutil").
func NewEnvLogger(name string) Logger {
	return New(Options{Name: name})
}

func (l *zapLogger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *zapLogger) Info(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Warn(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *zapLogger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{s: l.s.With(keysAndValues...)}
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}
func (l *noopLogger) With(keysAndValues ...interface{}) Logger { return l }

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
type BufferLogger struct {
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) Debug(format string, args ...interface{}) {
	l.Messages = append(l.Messages, LogMessage{Level: "debug", Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Info(format string, args ...interface{}) {
	l.Messages = append(l.Messages, LogMessage{Level: "info", Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Warn(format string, args ...interface{}) {
	l.Messages = append(l.Messages, LogMessage{Level: "warn", Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Error(format string, args ...interface{}) {
	l.Messages = append(l.Messages, LogMessage{Level: "error", Message: fmt.Sprintf(format, args...)})
}

// With ignores fields; captured messages keep only the formatted text.
func (l *BufferLogger) With(keysAndValues ...interface{}) Logger {
	return l
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Messages {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.Messages = l.Messages[:0]
}

var defaultLogger = NewEnvLogger("")

// Default returns the package-level default logger.
func Default() Logger {
	return defaultLogger
}

// SetDefault replaces the package-level default logger.
func SetDefault(l Logger) {
	defaultLogger = l
}
