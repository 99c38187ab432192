package beacon

import (
	"context"
	"errors"
	"time"

	"github.com/Tap30/beacon-go/adapters"
)

// CaptureWriter moves captured records from the intake queues into durable storage
// off the producer's path.
type CaptureWriter struct {
	storage  StorageAdapter
	session  *SessionGate
	logger   LoggerAdapter
	interval time.Duration

	offline  *Queue[OfflineRecord]
	periodic *Queue[OfflineRecord]
	signal   chan struct{}

	onOfflinePersisted func()
}

// NewCaptureWriter creates a writer that checks its queues every interval and
// whenever a record is enqueued.
func NewCaptureWriter(storage StorageAdapter, session *SessionGate, logger LoggerAdapter, interval time.Duration) *CaptureWriter {
	return &CaptureWriter{
		storage:  storage,
		session:  session,
		logger:   logger,
		interval: interval,
		offline:  NewQueue[OfflineRecord](),
		periodic: NewQueue[OfflineRecord](),
		signal:   make(chan struct{}, 1),
	}
}

// OnOfflinePersisted registers fn to run after each offline cache write.
// Must be called before Run.
func (w *CaptureWriter) OnOfflinePersisted(fn func()) {
	w.onOfflinePersisted = fn
}

// EnqueueOffline queues record for the offline cache. It never blocks.
func (w *CaptureWriter) EnqueueOffline(record OfflineRecord) {
	w.offline.Enqueue(record)
	w.wake()
}

// EnqueuePeriodic queues record for the periodic dispatch buffer. It never blocks.
func (w *CaptureWriter) EnqueuePeriodic(record OfflineRecord) {
	w.periodic.Enqueue(record)
	w.wake()
}

func (w *CaptureWriter) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of records not yet written.
func (w *CaptureWriter) Pending() int {
	return w.offline.Len() + w.periodic.Len()
}

// Run writes queued records until ctx is done, then drains what is left.
func (w *CaptureWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Drain(context.WithoutCancel(ctx))
			return nil
		case <-w.signal:
			w.Drain(ctx)
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain writes at most the records queued when it was called.
func (w *CaptureWriter) Drain(ctx context.Context) {
	for n := w.periodic.Len(); n > 0; n-- {
		record, ok := w.periodic.Dequeue()
		if !ok {
			break
		}
		w.persist(ctx, adapters.TablePeriodicDispatch, record)
	}

	for n := w.offline.Len(); n > 0; n-- {
		record, ok := w.offline.Dequeue()
		if !ok {
			break
		}
		// periodic rows were captured earlier and must not be overtaken
		if moved, err := w.storage.MigratePeriodicToOfflineCache(ctx, w.session.Current()); err != nil {
			w.logger.Error("Failed to migrate periodic requests: %v", err)
		} else if moved > 0 {
			w.logger.Debug("Migrated %d periodic requests to the offline cache", moved)
		}
		if w.persist(ctx, adapters.TableOfflineCache, record) && w.onOfflinePersisted != nil {
			w.onOfflinePersisted()
		}
	}
}

func (w *CaptureWriter) persist(ctx context.Context, table adapters.Table, record OfflineRecord) bool {
	err := w.storage.Persist(ctx, table, record)
	if err == nil {
		return true
	}

	var quotaErr *adapters.StorageQuotaExceededError
	if errors.As(err, &quotaErr) {
		w.logger.Warn("Dropping request to %s: %v", record.URL, err)
	} else {
		w.logger.Error("Failed to store request to %s: %v", record.URL, err)
	}
	return false
}
