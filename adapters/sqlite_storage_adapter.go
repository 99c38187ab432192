package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// ErrStorageClosed is returned by operations on a closed storage adapter.
var ErrStorageClosed = errors.New("storage adapter is closed")

// SQLiteStorageAdapter is the default storage adapter implementation backed by an
// embedded SQLite database file.
//
// The connection is reference counted: the first caller of an operation opens it and
// the last one to finish closes it, so nothing is held open between dispatch ticks.
type SQLiteStorageAdapter struct {
	path          string
	maxCachedRows int

	mu     sync.Mutex
	refs   int
	db     *sql.DB
	closed bool

	// serialises the multi-statement transactions of this process
	txMu sync.Mutex
}

// Ensure SQLiteStorageAdapter implements StorageAdapter interface
var _ StorageAdapter = (*SQLiteStorageAdapter)(nil)

// NewSQLiteStorageAdapter creates the database file if needed and its two tables.
//
// Parameters:
//   - path: Path to the database file
//   - maxCachedRows: Row limit of the offline cache table, 0 for no limit
func NewSQLiteStorageAdapter(path string, maxCachedRows int) (*SQLiteStorageAdapter, error) {
	s := &SQLiteStorageAdapter{path: path, maxCachedRows: maxCachedRows}

	db, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()

	if err := createTables(db); err != nil {
		return nil, err
	}
	return s, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS offline_cache(
	  id           INTEGER PRIMARY KEY AUTOINCREMENT,
	  session_code TEXT,
	  data         TEXT    NOT NULL,
	  in_process   INTEGER NOT NULL DEFAULT 0,
	  timestamp    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offline_cache_ts ON offline_cache(timestamp);
	CREATE TABLE IF NOT EXISTS periodic_dispatch(
	  id         INTEGER PRIMARY KEY AUTOINCREMENT,
	  data       TEXT    NOT NULL,
	  in_process INTEGER NOT NULL DEFAULT 0,
	  timestamp  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_periodic_dispatch_ts ON periodic_dispatch(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (s *SQLiteStorageAdapter) acquire() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStorageClosed
	}
	if s.refs == 0 {
		// WAL + busy timeout to avoid "database is locked"
		db, err := sql.Open("sqlite", "file:"+s.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.db = db
	}
	s.refs++
	return s.db, nil
}

func (s *SQLiteStorageAdapter) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs--
	if s.refs == 0 && s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}

func tableName(table Table) (string, error) {
	switch table {
	case TableOfflineCache, TablePeriodicDispatch:
		return string(table), nil
	}
	return "", fmt.Errorf("unknown table: %q", table)
}

// Persist inserts the record as a not-in-process row in its own transaction.
func (s *SQLiteStorageAdapter) Persist(ctx context.Context, table Table, record OfflineRecord) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	db, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.release()

	s.txMu.Lock()
	defer s.txMu.Unlock()

	transaction, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if table == TableOfflineCache {
		if s.maxCachedRows > 0 {
			var count int
			if err := transaction.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_cache`).Scan(&count); err != nil {
				_ = transaction.Rollback()
				return fmt.Errorf("failed to count cached rows: %w", err)
			}
			if count >= s.maxCachedRows {
				_ = transaction.Rollback()
				return &StorageQuotaExceededError{
					Message: fmt.Sprintf("offline cache is full (%d rows)", s.maxCachedRows),
					Limit:   s.maxCachedRows,
				}
			}
		}
		sessionCode, _ := record.Params[ParamSessionCode].(string)
		_, err = transaction.ExecContext(ctx,
			`INSERT INTO offline_cache(session_code, data, in_process, timestamp) VALUES(?,?,0,?)`,
			nullable(sessionCode), string(data), record.Timestamp())
	} else {
		_, err = transaction.ExecContext(ctx,
			`INSERT INTO `+name+`(data, in_process, timestamp) VALUES(?,0,?)`,
			string(data), record.Timestamp())
	}
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to insert into %s: %w", name, err)
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FetchAndClaim selects and marks rows inside one transaction so that two
// concurrent claims can never return the same row.
func (s *SQLiteStorageAdapter) FetchAndClaim(ctx context.Context, table Table) (Batch, error) {
	name, err := tableName(table)
	if err != nil {
		return Batch{}, err
	}

	db, err := s.acquire()
	if err != nil {
		return Batch{}, err
	}
	defer s.release()

	s.txMu.Lock()
	defer s.txMu.Unlock()

	transaction, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	rows, err := transaction.QueryContext(ctx,
		`SELECT id, data FROM `+name+` WHERE in_process = 0 ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		_ = transaction.Rollback()
		return Batch{}, fmt.Errorf("failed to query %s: %w", name, err)
	}

	var ids, corrupt []any
	var payloads []string
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			_ = transaction.Rollback()
			return Batch{}, fmt.Errorf("failed to scan row: %w", err)
		}
		if !json.Valid([]byte(data)) {
			corrupt = append(corrupt, id)
			continue
		}
		ids = append(ids, id)
		payloads = append(payloads, data)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		_ = transaction.Rollback()
		return Batch{}, fmt.Errorf("failed to read %s: %w", name, err)
	}

	// unreadable rows can never be sent
	if len(corrupt) > 0 {
		if _, err := transaction.ExecContext(ctx,
			`DELETE FROM `+name+` WHERE id IN (`+placeholders(len(corrupt))+`)`, corrupt...); err != nil {
			_ = transaction.Rollback()
			return Batch{}, fmt.Errorf("failed to drop corrupt rows: %w", err)
		}
	}
	if len(ids) > 0 {
		if _, err := transaction.ExecContext(ctx,
			`UPDATE `+name+` SET in_process = 1 WHERE id IN (`+placeholders(len(ids))+`)`, ids...); err != nil {
			_ = transaction.Rollback()
			return Batch{}, fmt.Errorf("failed to claim rows: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return Batch{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return encodeBatch(payloads), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Commit deletes the claimed rows.
func (s *SQLiteStorageAdapter) Commit(ctx context.Context, table Table) (int64, error) {
	name, err := tableName(table)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, `DELETE FROM `+name+` WHERE in_process = 1`)
}

// Rollback releases the claimed rows for a later attempt.
func (s *SQLiteStorageAdapter) Rollback(ctx context.Context, table Table) (int64, error) {
	name, err := tableName(table)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, `UPDATE `+name+` SET in_process = 0 WHERE in_process = 1`)
}

func (s *SQLiteStorageAdapter) exec(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer s.release()

	s.txMu.Lock()
	defer s.txMu.Unlock()

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	return result.RowsAffected()
}

// MigratePeriodicToOfflineCache moves the stored periodic rows into the offline
// cache in one transaction. Claimed periodic rows stay where they are; they belong
// to the batch in flight.
func (s *SQLiteStorageAdapter) MigratePeriodicToOfflineCache(ctx context.Context, sessionCode string) (int64, error) {
	db, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer s.release()

	s.txMu.Lock()
	defer s.txMu.Unlock()

	transaction, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	inserted, err := transaction.ExecContext(ctx, `
	INSERT INTO offline_cache(session_code, data, in_process, timestamp)
	SELECT ?, data, 0, timestamp FROM periodic_dispatch WHERE in_process = 0 ORDER BY timestamp DESC, id DESC`,
		nullable(sessionCode))
	if err != nil {
		_ = transaction.Rollback()
		return 0, fmt.Errorf("failed to copy periodic rows: %w", err)
	}
	if _, err := transaction.ExecContext(ctx, `DELETE FROM periodic_dispatch WHERE in_process = 0`); err != nil {
		_ = transaction.Rollback()
		return 0, fmt.Errorf("failed to clear periodic rows: %w", err)
	}
	if err := transaction.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted.RowsAffected()
}

// Count returns the number of rows in table.
func (s *SQLiteStorageAdapter) Count(ctx context.Context, table Table) (int, error) {
	name, err := tableName(table)
	if err != nil {
		return 0, err
	}

	db, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer s.release()

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+name).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return count, nil
}

// Close prevents further operations. The connection itself is closed by the last
// operation still running, if any.
func (s *SQLiteStorageAdapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.refs == 0 && s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
