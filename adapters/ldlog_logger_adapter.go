package adapters

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// LDLogLoggerAdapter forwards to caller-supplied ldlog.Loggers, keeping their
// base logger and minimum level.
type LDLogLoggerAdapter struct {
	loggers ldlog.Loggers
}

// NewLDLogLoggerAdapter wraps loggers.
func NewLDLogLoggerAdapter(loggers ldlog.Loggers) *LDLogLoggerAdapter {
	return &LDLogLoggerAdapter{loggers: loggers}
}

func (l *LDLogLoggerAdapter) Debug(message string, args ...interface{}) {
	l.loggers.Debugf(message, args...)
}

func (l *LDLogLoggerAdapter) Info(message string, args ...interface{}) {
	l.loggers.Infof(message, args...)
}

func (l *LDLogLoggerAdapter) Warn(message string, args ...interface{}) {
	l.loggers.Warnf(message, args...)
}

func (l *LDLogLoggerAdapter) Error(message string, args ...interface{}) {
	l.loggers.Errorf(message, args...)
}
