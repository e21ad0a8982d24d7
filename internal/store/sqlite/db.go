// Package sqlite implements store.Store on top of a local SQLite database,
// using the pure-Go ncruces/go-sqlite3 driver (no cgo), matching the
// no-cgo-driver idiom used across the retrieval pack (untoldecay-BeadsLog's
// internal/storage/sqlite, jra3-linear-fuse's modernc.org/sqlite).
//
// Grounded on untoldecay-BeadsLog's internal/storage/sqlite/sqlite_test.go
// (connection setup, PRAGMA tuning) and internal/storage/storage.go
// (RunInTransaction / BEGIN IMMEDIATE discipline).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cristinecula/knowledge-mcp/internal/store"
)

// DB wraps a *sql.DB implementing store.Store.
type DB struct {
	db   *sql.DB
	path string

	// mu serializes the process-local writer path on top of SQLite's own
	// BEGIN IMMEDIATE writer serialization. It is unexported and taken only
	// by DB's own methods; the commit scheduler guards its touched-repos set
	// with a separate mutex, which this lock does not cover.
	mu sync.Mutex
}

// Open opens (creating if necessary) the SQLite-backed index at path,
// applies the base schema, and runs any pending migrations.
func Open(path string) (*DB, error) {
	// _txlock=immediate makes every sql.Tx began by this pool acquire the
	// write lock up front (BEGIN IMMEDIATE), matching the teacher's
	// documented "acquire write lock early to avoid deadlocks between
	// concurrent writers" discipline without hand-issuing BEGIN statements
	// that would fight the database/sql transaction state machine.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under WAL; readers use
	// the same pool since WAL allows concurrent readers with one writer.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA synchronous = NORMAL`,
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{db: sqlDB, path: path}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Path() string { return d.path }

func (d *DB) UnderlyingDB() *sql.DB { return d.db }

// execer is satisfied by both *sql.DB and *sql.Tx, letting entry/link
// helpers run identically inside or outside an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ store.Store = (*DB)(nil)
