package adapters

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// NoOpLoggerAdapter discards every message.
type NoOpLoggerAdapter struct {
	LDLogLoggerAdapter
}

// Ensure NoOpLoggerAdapter implements LoggerAdapter interface
var _ LoggerAdapter = (*NoOpLoggerAdapter)(nil)

// NewNoOpLoggerAdapter returns a logger over ldlog's disabled loggers.
func NewNoOpLoggerAdapter() *NoOpLoggerAdapter {
	return &NoOpLoggerAdapter{LDLogLoggerAdapter{loggers: ldlog.NewDisabledLoggers()}}
}
