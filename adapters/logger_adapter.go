package adapters

import (
	"strings"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelNone  LogLevel = "NONE"
)

// ParseLogLevel maps a case-insensitive level name to a LogLevel, falling back to WARN.
func ParseLogLevel(name string) LogLevel {
	switch level := LogLevel(strings.ToUpper(strings.TrimSpace(name))); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelNone:
		return level
	}
	return LogLevelWarn
}

func (l LogLevel) ldLevel() ldlog.LogLevel {
	switch l {
	case LogLevelDebug:
		return ldlog.Debug
	case LogLevelInfo:
		return ldlog.Info
	case LogLevelError:
		return ldlog.Error
	case LogLevelNone:
		return ldlog.None
	}
	return ldlog.Warn
}

// LoggerAdapter is an interface for logging.
// Implement this interface to use custom loggers.
type LoggerAdapter interface {
	// Debug logs a debug message
	Debug(message string, args ...interface{})

	// Info logs an info message
	Info(message string, args ...interface{})

	// Warn logs a warning message
	Warn(message string, args ...interface{})

	// Error logs an error message
	Error(message string, args ...interface{})
}
