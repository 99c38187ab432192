package beacon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tap30/beacon-go/adapters"
)

func eventRecord(key string) OfflineRecord {
	return adapters.NewOfflineRecord("http://c/api"+string(adapters.EndpointEvent), map[string]any{adapters.ParamEventKey: key})
}

func TestCaptureWriter_Drain(t *testing.T) {
	ctx := context.Background()
	storage := adapters.NewMemoryStorageAdapter(0)
	writer := NewCaptureWriter(storage, NewSessionGate(5, adapters.NewNoOpLoggerAdapter()), adapters.NewNoOpLoggerAdapter(), time.Hour)

	var persisted int
	writer.OnOfflinePersisted(func() { persisted++ })

	writer.EnqueuePeriodic(eventRecord("p1"))
	writer.EnqueueOffline(eventRecord("o1"))
	writer.EnqueueOffline(eventRecord("o2"))
	assert.Equal(t, 3, writer.Pending())

	writer.Drain(ctx)
	assert.Zero(t, writer.Pending())
	assert.Equal(t, 2, persisted)

	// the periodic row was migrated ahead of the first offline write
	offline, err := storage.Count(ctx, adapters.TableOfflineCache)
	require.NoError(t, err)
	assert.Equal(t, 3, offline)

	periodic, err := storage.Count(ctx, adapters.TablePeriodicDispatch)
	require.NoError(t, err)
	assert.Zero(t, periodic)
}

func TestCaptureWriter_OfflineWriteMigratesEarlierPeriodicRows(t *testing.T) {
	ctx := context.Background()
	storage := adapters.NewMemoryStorageAdapter(0)
	writer := NewCaptureWriter(storage, NewSessionGate(5, adapters.NewNoOpLoggerAdapter()), adapters.NewNoOpLoggerAdapter(), time.Hour)

	writer.EnqueuePeriodic(eventRecord("p1"))
	writer.Drain(ctx)
	writer.EnqueueOffline(eventRecord("o1"))
	writer.Drain(ctx)

	batch, err := storage.FetchAndClaim(ctx, adapters.TableOfflineCache)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Count)

	periodic, err := storage.Count(ctx, adapters.TablePeriodicDispatch)
	require.NoError(t, err)
	assert.Zero(t, periodic)
}

func TestCaptureWriter_QuotaIsLoggedAndDropped(t *testing.T) {
	ctx := context.Background()
	mockLog := ldlogtest.NewMockLog()
	storage := adapters.NewMemoryStorageAdapter(1)
	writer := NewCaptureWriter(storage, NewSessionGate(5, adapters.NewNoOpLoggerAdapter()), adapters.NewLDLogLoggerAdapter(mockLog.Loggers), time.Hour)

	writer.EnqueueOffline(eventRecord("o1"))
	writer.EnqueueOffline(eventRecord("o2"))
	writer.Drain(ctx)

	count, err := storage.Count(ctx, adapters.TableOfflineCache)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	mockLog.AssertMessageMatch(t, true, ldlog.Warn, "Dropping request")
}

func TestCaptureWriter_Run(t *testing.T) {
	storage := adapters.NewMemoryStorageAdapter(0)
	writer := NewCaptureWriter(storage, NewSessionGate(5, adapters.NewNoOpLoggerAdapter()), adapters.NewNoOpLoggerAdapter(), time.Hour)

	var persisted atomic.Int32
	writer.OnOfflinePersisted(func() { persisted.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- writer.Run(ctx) }()

	t.Run("should wake on enqueue without waiting for the ticker", func(t *testing.T) {
		writer.EnqueueOffline(eventRecord("o1"))
		assert.Eventually(t, func() bool { return persisted.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("should drain on shutdown", func(t *testing.T) {
		cancel()
		require.NoError(t, <-done)

		writer.EnqueueOffline(eventRecord("late"))
		writer.Drain(context.Background())
		assert.Equal(t, int32(2), persisted.Load())
	})
}
