package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger provides structured logging for the auditor
type Logger struct {
	prefix string
	logger *slog.Logger
}

var (
	baseOnce    sync.Once
	baseHandler slog.Handler
)

// base builds the shared handler from LOG_FORMAT (json|text) and LOG_LEVEL
func base() slog.Handler {
	baseOnce.Do(func() {
		baseHandler = NewHandler(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	})
	return baseHandler
}

// NewHandler creates a slog handler for the given format and level names
func NewHandler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return NewLoggerWithHandler(prefix, base())
}

// NewLoggerWithHandler creates a logger writing to h
func NewLoggerWithHandler(prefix string, h slog.Handler) *Logger {
	return &Logger{
		prefix: prefix,
		logger: slog.New(h).With("component", prefix),
	}
}

// With returns a logger that adds keysAndValues to every record
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, logger: l.logger.With(keysAndValues...)}
}

// Slog exposes the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}
