package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger defines a standard logging interface for the application
type Logger interface {
	Debug(message string, component string, data map[string]interface{})
	Info(message string, component string, data map[string]interface{})
	Warn(message string, component string, data map[string]interface{})
	Error(message string, component string, data map[string]interface{})
	Fatal(message string, component string, data map[string]interface{})
}

// DefaultLogger writes through the global zerolog logger, so it follows Init.
type DefaultLogger struct{}

// NewLogger creates a new instance of the default logger
func NewLogger() Logger {
	return &DefaultLogger{}
}

func (l *DefaultLogger) Debug(message string, component string, data map[string]interface{}) {
	Debug(message, component, data)
}

func (l *DefaultLogger) Info(message string, component string, data map[string]interface{}) {
	Info(message, component, data)
}

func (l *DefaultLogger) Warn(message string, component string, data map[string]interface{}) {
	Warn(message, component, data)
}

func (l *DefaultLogger) Error(message string, component string, data map[string]interface{}) {
	Error(message, component, data)
}

func (l *DefaultLogger) Fatal(message string, component string, data map[string]interface{}) {
	Fatal(message, component, data)
}

// WriterLogger is a Logger bound to its own zerolog instance instead of the global one.
// Tests use it to capture output.
type WriterLogger struct {
	zl zerolog.Logger
}

// NewWriterLogger returns a JSON logger writing to w at the given level.
func NewWriterLogger(w io.Writer, level string) *WriterLogger {
	return &WriterLogger{zl: zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()}
}

func (l *WriterLogger) Debug(message string, component string, data map[string]interface{}) {
	write(l.zl, DebugLevel, message, component, data)
}

func (l *WriterLogger) Info(message string, component string, data map[string]interface{}) {
	write(l.zl, InfoLevel, message, component, data)
}

func (l *WriterLogger) Warn(message string, component string, data map[string]interface{}) {
	write(l.zl, WarnLevel, message, component, data)
}

func (l *WriterLogger) Error(message string, component string, data map[string]interface{}) {
	write(l.zl, ErrorLevel, message, component, data)
}

// Fatal on a WriterLogger logs at error level and does not exit.
func (l *WriterLogger) Fatal(message string, component string, data map[string]interface{}) {
	write(l.zl, ErrorLevel, message, component, data)
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &WriterLogger{zl: zerolog.Nop()}
}
