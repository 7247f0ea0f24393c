package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// StorageTable is the host table SQLite backends keep their entries in.
const StorageTable = "vec0_storage"

// closeWaitMillis bounds how long Close waits for the host write lock.
const closeWaitMillis = 5000

type pendingOp struct {
	value   []byte
	deleted bool
}

// SQLite is a Backend stored in the host database file, next to the vec0
// tables it serves. It writes through its own connection. The host holds its
// write lock while it calls into a virtual table, so a write that finds the
// database locked stays pending and is applied by the next write, Sync or
// Close that finds it unlocked. Reads see pending writes.
type SQLite struct {
	db      *sql.DB
	file    string
	mu      sync.Mutex
	pending map[string]pendingOp
}

// OpenSQLite opens the backend on the database file at path and creates the
// storage table when missing.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(0)")
	if err != nil {
		return nil, fmt.Errorf("vec0: storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db, file: path, pending: map[string]pendingOp{}}
	err = s.withConn(ctx, closeWaitMillis, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+StorageTable+` (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
) WITHOUT ROWID`)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vec0: storage: create %s in %s: %w", StorageTable, path, err)
	}
	return s, nil
}

// File returns the path of the host database.
func (s *SQLite) File() string { return s.file }

// withConn runs fn on a dedicated connection with the given busy timeout.
func (s *SQLite) withConn(ctx context.Context, waitMillis int, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", waitMillis)); err != nil {
		return err
	}
	if waitMillis != 0 {
		defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA busy_timeout = 0") }()
	}
	return fn(conn)
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.pending[key]; ok {
		if op.deleted {
			return nil, ErrNotFound
		}
		return slices.Clone(op.value), nil
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM `+StorageTable+` WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vec0: storage: get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return s.BatchSet(ctx, []Entry{{Key: key, Value: value}})
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.BatchDelete(ctx, []string{key})
}

func (s *SQLite) BatchSet(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.pending[e.Key] = pendingOp{value: slices.Clone(e.Value)}
	}
	return s.apply(ctx, 0)
}

func (s *SQLite) BatchDelete(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.pending[key] = pendingOp{deleted: true}
	}
	return s.apply(ctx, 0)
}

// List yields the stored entries under prefix merged with pending writes.
func (s *SQLite) List(ctx context.Context, prefix string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.Lock()
		merged, err := s.list(ctx, prefix)
		s.mu.Unlock()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		keys := make([]string, 0, len(merged))
		for key := range merged {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			if !yield(Entry{Key: key, Value: merged[key]}, nil) {
				return
			}
		}
	}
}

func (s *SQLite) list(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM `+StorageTable+` WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("vec0: storage: list %s: %w", prefix, err)
	}
	defer rows.Close()
	merged := map[string][]byte{}
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("vec0: storage: list %s: %w", prefix, err)
		}
		if !strings.HasPrefix(key, prefix) {
			break
		}
		merged[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vec0: storage: list %s: %w", prefix, err)
	}
	for key, op := range s.pending {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if op.deleted {
			delete(merged, key)
			continue
		}
		merged[key] = slices.Clone(op.value)
	}
	return merged, nil
}

// Sync applies pending writes. A locked host database is not an error; the
// writes stay pending.
func (s *SQLite) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, 0)
}

// Pending returns the number of writes not yet in the host database.
func (s *SQLite) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// WriteLocked reports whether another connection holds the write lock of
// the host database.
func (s *SQLite) WriteLocked(ctx context.Context) bool {
	locked := false
	_ = s.withConn(ctx, 0, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			locked = isBusy(err)
			return err
		}
		_, err := conn.ExecContext(ctx, "ROLLBACK")
		return err
	})
	return locked
}

// apply writes every pending operation in one transaction. Runs under s.mu.
func (s *SQLite) apply(ctx context.Context, waitMillis int) error {
	if len(s.pending) == 0 {
		return nil
	}
	err := s.withConn(ctx, waitMillis, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return err
		}
		if err := s.write(ctx, conn); err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			return err
		}
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			return err
		}
		return nil
	})
	switch {
	case err == nil:
		clear(s.pending)
		return nil
	case isBusy(err):
		return nil
	}
	return fmt.Errorf("vec0: storage: write %s: %w", s.file, err)
}

func (s *SQLite) write(ctx context.Context, conn *sql.Conn) error {
	for key, op := range s.pending {
		var err error
		if op.deleted {
			_, err = conn.ExecContext(ctx, `DELETE FROM `+StorageTable+` WHERE key = ?`, key)
		} else {
			_, err = conn.ExecContext(ctx, `INSERT INTO `+StorageTable+`(key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close applies pending writes, waiting for the host write lock, and closes
// the connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	err := s.apply(context.Background(), closeWaitMillis)
	if err == nil && len(s.pending) > 0 {
		err = fmt.Errorf("vec0: storage: %d writes to %s still pending: database is locked", len(s.pending), s.file)
	}
	s.mu.Unlock()
	return errors.Join(err, s.db.Close())
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
