// Package sqlite is the single authoritative persistent store: schema,
// migrations, typed task/dependency operations, and atomic bulk pruning.
// It is the only package in this module that writes SQL.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultBusyTimeout is the engine-level lock wait before SQLITE_BUSY,
// applied as a connection-string pragma on every connection.
const DefaultBusyTimeout = 5000 * time.Millisecond

// Store is the embedded SQL task queue store.
type Store struct {
	db       *sql.DB
	dbPath   string
	inMemory bool
	closed   atomic.Bool
}

// Open opens (creating if absent) a file-backed store at path and applies
// any pending migrations. File-backed stores allow one writer plus several
// readers open at once but keep no idle connections, so every operation
// opens a fresh connection; pragmas are embedded in the DSN so each new
// connection applies them on open.
func Open(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, false)
}

// OpenInMemory opens an in-memory store for tests. In-memory SQLite
// databases are connection-private, so the pool is pinned to a single
// shared connection.
func OpenInMemory(ctx context.Context) (*Store, error) {
	return open(ctx, "file:abathur-mem?mode=memory&cache=shared", true)
}

func open(ctx context.Context, path string, inMemory bool) (*Store, error) {
	dsn, err := buildDSN(path, inMemory)
	if err != nil {
		return nil, fmt.Errorf("build dsn: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		maxConns := runtime.NumCPU() + 1 // one writer, N readers
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(0)
		db.SetConnMaxLifetime(0)

		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA wal_autocheckpoint=1000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set wal_autocheckpoint: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, dbPath: path, inMemory: inMemory}, nil
}

// buildDSN constructs the ncruces/go-sqlite3 connection string, embedding
// the pragmas that must be bit-exact for correctness: synchronous=NORMAL
// and foreign_keys=ON on every connection, plus the busy timeout.
func buildDSN(path string, inMemory bool) (string, error) {
	timeoutMs := int64(DefaultBusyTimeout / time.Millisecond)

	if inMemory {
		return fmt.Sprintf(
			"%s&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite",
			path, timeoutMs,
		), nil
	}

	if strings.HasPrefix(path, "file:") {
		conn := path
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += fmt.Sprintf("&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_time_format=sqlite", timeoutMs)
		}
		return conn, nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create db directory: %w", err)
		}
	}
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_time_format=sqlite",
		path, timeoutMs,
	), nil
}

// Close closes the store. For file-backed stores it checkpoints the WAL
// first so all committed writes land in the main database file.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !s.inMemory {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// Path returns the store's backing path (the in-memory DSN for memory
// stores).
func (s *Store) Path() string {
	return s.dbPath
}

// DB exposes the underlying pool for callers (tests, doctor-style
// diagnostics) that need raw access. Regular operations go through the
// typed methods in this package.
func (s *Store) DB() *sql.DB {
	return s.db
}
