package adapters

import (
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
)

func TestPrintLoggerAdapter(t *testing.T) {
	t.Run("should create logger with debug level", func(t *testing.T) {
		logger := NewPrintLoggerAdapter(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.level)
		assert.True(t, logger.loggers.IsDebugEnabled())
	})

	t.Run("should not enable debug output at warn level", func(t *testing.T) {
		logger := NewPrintLoggerAdapter(LogLevelWarn)
		assert.False(t, logger.loggers.IsDebugEnabled())

		logger.Debug("debug message %s", "test")
		logger.Warn("warn message %s", "test")
	})

	t.Run("should handle none level", func(t *testing.T) {
		logger := NewPrintLoggerAdapter(LogLevelNone)

		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")
		logger.Error("error message")
	})
}

func TestLDLogLoggerAdapter(t *testing.T) {
	mockLog := ldlogtest.NewMockLog()
	logger := NewLDLogLoggerAdapter(mockLog.Loggers)

	logger.Debug("claimed %d rows", 3)
	logger.Info("session %s started", "abc")
	logger.Warn("offline cache is full")
	logger.Error("failed to send: %v", "boom")

	assert.Equal(t, []string{"claimed 3 rows"}, mockLog.GetOutput(ldlog.Debug))
	assert.Equal(t, []string{"session abc started"}, mockLog.GetOutput(ldlog.Info))
	assert.Equal(t, []string{"offline cache is full"}, mockLog.GetOutput(ldlog.Warn))
	mockLog.AssertMessageMatch(t, true, ldlog.Error, "failed to send: boom")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelError, ParseLogLevel(" ERROR "))
	assert.Equal(t, LogLevelNone, ParseLogLevel("none"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("verbose"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel(""))
}
