package adapters

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const logPrefix = "[Beacon]"

// PrintLoggerAdapter implements LoggerAdapter by writing to the standard error stream
// through ldlog.
type PrintLoggerAdapter struct {
	level   LogLevel
	loggers ldlog.Loggers
}

// NewPrintLoggerAdapter creates a new print logger with the specified level
func NewPrintLoggerAdapter(level LogLevel) *PrintLoggerAdapter {
	loggers := ldlog.NewDefaultLoggers()
	loggers.SetMinLevel(level.ldLevel())
	loggers.SetPrefix(logPrefix)
	return &PrintLoggerAdapter{level: level, loggers: loggers}
}

func (p *PrintLoggerAdapter) Debug(message string, args ...interface{}) {
	p.loggers.Debugf(message, args...)
}

func (p *PrintLoggerAdapter) Info(message string, args ...interface{}) {
	p.loggers.Infof(message, args...)
}

func (p *PrintLoggerAdapter) Warn(message string, args ...interface{}) {
	p.loggers.Warnf(message, args...)
}

func (p *PrintLoggerAdapter) Error(message string, args ...interface{}) {
	p.loggers.Errorf(message, args...)
}
