package adapters

import (
	"context"
	"strings"
)

// StorageAdapter is the durable store for requests that cannot be sent right away.
// Implement this interface to use custom storage backends.
//
// Rows move through three states: stored (not in process), claimed (in process for
// exactly one send attempt) and gone (committed). A claimed row is invisible to any
// other claim until it is committed or rolled back.
type StorageAdapter interface {
	// Persist stores a record as a not-in-process row.
	//
	// Returns *StorageQuotaExceededError when the offline cache is full.
	Persist(ctx context.Context, table Table, record OfflineRecord) error

	// FetchAndClaim atomically selects every not-in-process row, newest first,
	// marks them in process and returns their payloads as a JSON array.
	//
	// An empty Batch means there is nothing to send.
	FetchAndClaim(ctx context.Context, table Table) (Batch, error)

	// Commit deletes every in-process row. Call after a confirmed send.
	Commit(ctx context.Context, table Table) (int64, error)

	// Rollback returns every in-process row to not in process so it is retried.
	Rollback(ctx context.Context, table Table) (int64, error)

	// MigratePeriodicToOfflineCache moves every not-in-process periodic row into
	// the offline cache, stamped with sessionCode.
	MigratePeriodicToOfflineCache(ctx context.Context, sessionCode string) (int64, error)

	// Count returns the number of rows in table, claimed or not.
	Count(ctx context.Context, table Table) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// StorageQuotaExceededError is returned when the offline cache reached its row limit.
type StorageQuotaExceededError struct {
	Message string
	Limit   int
}

func (e *StorageQuotaExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "storage quota exceeded"
}

func encodeBatch(payloads []string) Batch {
	if len(payloads) == 0 {
		return Batch{}
	}
	return Batch{Data: "[" + strings.Join(payloads, ",") + "]", Count: len(payloads)}
}
