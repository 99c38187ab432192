package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpLoggerAdapter(t *testing.T) {
	logger := NewNoOpLoggerAdapter()
	assert.NotNil(t, logger)

	var _ LoggerAdapter = logger
	assert.False(t, logger.loggers.IsDebugEnabled())

	assert.NotPanics(t, func() {
		logger.Debug("message %s %d", "test", 123)
		logger.Info("message", nil)
		logger.Warn("message")
		logger.Error("message", "arg1", "arg2")
	})
}
