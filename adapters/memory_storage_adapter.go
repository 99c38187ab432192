package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memoryRow struct {
	id          int64
	sessionCode string
	data        string
	inProcess   bool
	timestamp   int64
}

// MemoryStorageAdapter keeps both tables in process memory.
// Useful for tests and for hosts where nothing should survive a restart.
type MemoryStorageAdapter struct {
	mu            sync.Mutex
	maxCachedRows int
	nextID        int64
	tables        map[Table][]memoryRow
}

// Ensure MemoryStorageAdapter implements StorageAdapter interface
var _ StorageAdapter = (*MemoryStorageAdapter)(nil)

// NewMemoryStorageAdapter creates a new MemoryStorageAdapter instance.
func NewMemoryStorageAdapter(maxCachedRows int) *MemoryStorageAdapter {
	return &MemoryStorageAdapter{
		maxCachedRows: maxCachedRows,
		tables: map[Table][]memoryRow{
			TableOfflineCache:     nil,
			TablePeriodicDispatch: nil,
		},
	}
}

func (m *MemoryStorageAdapter) Persist(_ context.Context, table Table, record OfflineRecord) error {
	if _, err := tableName(table); err != nil {
		return err
	}
	data, err := json.Marshal(record.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if table == TableOfflineCache && m.maxCachedRows > 0 && len(m.tables[table]) >= m.maxCachedRows {
		return &StorageQuotaExceededError{
			Message: fmt.Sprintf("offline cache is full (%d rows)", m.maxCachedRows),
			Limit:   m.maxCachedRows,
		}
	}

	m.nextID++
	row := memoryRow{id: m.nextID, data: string(data), timestamp: record.Timestamp()}
	if table == TableOfflineCache {
		row.sessionCode, _ = record.Params[ParamSessionCode].(string)
	}
	m.tables[table] = append(m.tables[table], row)
	return nil
}

func (m *MemoryStorageAdapter) FetchAndClaim(_ context.Context, table Table) (Batch, error) {
	if _, err := tableName(table); err != nil {
		return Batch{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	var claimed []int
	for i := range rows {
		if !rows[i].inProcess {
			rows[i].inProcess = true
			claimed = append(claimed, i)
		}
	}
	sort.Slice(claimed, func(a, b int) bool {
		ra, rb := rows[claimed[a]], rows[claimed[b]]
		if ra.timestamp != rb.timestamp {
			return ra.timestamp > rb.timestamp
		}
		return ra.id > rb.id
	})

	payloads := make([]string, 0, len(claimed))
	for _, i := range claimed {
		payloads = append(payloads, rows[i].data)
	}
	return encodeBatch(payloads), nil
}

func (m *MemoryStorageAdapter) Commit(_ context.Context, table Table) (int64, error) {
	if _, err := tableName(table); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.tables[table][:0]
	var deleted int64
	for _, row := range m.tables[table] {
		if row.inProcess {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	m.tables[table] = kept
	return deleted, nil
}

func (m *MemoryStorageAdapter) Rollback(_ context.Context, table Table) (int64, error) {
	if _, err := tableName(table); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var released int64
	rows := m.tables[table]
	for i := range rows {
		if rows[i].inProcess {
			rows[i].inProcess = false
			released++
		}
	}
	return released, nil
}

func (m *MemoryStorageAdapter) MigratePeriodicToOfflineCache(_ context.Context, sessionCode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []memoryRow
	var moved int64
	for _, row := range m.tables[TablePeriodicDispatch] {
		if row.inProcess {
			kept = append(kept, row)
			continue
		}
		row.sessionCode = sessionCode
		m.tables[TableOfflineCache] = append(m.tables[TableOfflineCache], row)
		moved++
	}
	m.tables[TablePeriodicDispatch] = kept
	return moved, nil
}

func (m *MemoryStorageAdapter) Count(_ context.Context, table Table) (int, error) {
	if _, err := tableName(table); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table]), nil
}

// Close does nothing and always returns nil.
func (m *MemoryStorageAdapter) Close() error {
	return nil
}
