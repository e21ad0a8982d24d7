package sqlite

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only, idempotent schema change. Grounded on
// untoldecay-BeadsLog's internal/storage/sqlite/migrations.go +
// migrations/NNN_*.go numbered-file convention: each migration is applied
// at most once, tracked in schema_migrations, and must be safe to re-apply
// to a database that already has it (spec §6: "forward-only, idempotent on
// startup, preserve IDs").
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations is the ordered list of schema changes applied after the base
// schema. New migrations are appended here; existing ones are never edited
// or removed once released, matching the teacher's numbered-file discipline.
var migrations = []migration{
	{
		version: 1,
		name:    "content_hash_column",
		apply: func(tx *sql.Tx) error {
			if hasColumn(tx, "entries", "content_hash") {
				return nil
			}
			_, err := tx.Exec(`ALTER TABLE entries ADD COLUMN content_hash TEXT`)
			return err
		},
	},
	{
		version: 2,
		name:    "backfill_fts",
		apply: func(tx *sql.Tx) error {
			// Repairs I4 for any entries whose FTS shadow row is missing
			// (e.g. imported directly into the entries table by a
			// migration written before the AFTER INSERT trigger existed).
			_, err := tx.Exec(`
				INSERT INTO entries_fts(rowid, id, title, content, tags)
				SELECT e.rowid, e.id, e.title, e.content, e.tags
				FROM entries e
				LEFT JOIN entries_fts f ON f.rowid = e.rowid
				WHERE f.rowid IS NULL
			`)
			return err
		},
	},
}

func hasColumn(tx *sql.Tx, table, column string) bool {
	rows, err := tx.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// runMigrations applies every migration whose version is not yet recorded
// in schema_migrations, each inside its own transaction so a crash
// mid-migration never leaves a half-applied change without a record of it.
func runMigrations(db *sql.DB) error {
	applied := map[int]bool{}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): begin: %w", m.version, m.name, err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): recording: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit: %w", m.version, m.name, err)
		}
	}
	return nil
}
