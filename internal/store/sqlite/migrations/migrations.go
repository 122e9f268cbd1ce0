// Package migrations holds the durable store's versioned schema
// migrations, applied in order without a wrapping transaction and
// recorded in the schema_migrations table (spec §4.3). Each migration is
// a small, single-purpose function, grounded on the teacher's
// internal/storage/sqlite/migrations package (e.g. 002_external_ref_column.go).
package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one versioned, idempotent schema step.
type Migration struct {
	Version     int
	Description string
	Up          func(db *sql.DB) error
}

// All returns every migration in version order.
func All() []Migration {
	return []Migration{
		{Version: 1, Description: "initial schema", Up: migrateInitialSchema},
		{Version: 2, Description: "repair log table", Up: migrateRepairLog},
	}
}

// EnsureMigrationsTable creates the bookkeeping table if absent.
func EnsureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	return err
}

// AppliedVersions returns the set of already-applied migration versions.
func AppliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// Apply runs every not-yet-applied migration, in version order, directly
// on db with no transaction around it, recording it in schema_migrations
// on success.
func Apply(db *sql.DB) error {
	if err := EnsureMigrationsTable(db); err != nil {
		return fmt.Errorf("migrations: ensure table: %w", err)
	}
	applied, err := AppliedVersions(db)
	if err != nil {
		return fmt.Errorf("migrations: read applied: %w", err)
	}

	for _, m := range All() {
		if applied[m.Version] {
			continue
		}
		// Each migration manages its own idempotency (CREATE TABLE IF NOT
		// EXISTS, column-existence checks) so a crash between Up and the
		// bookkeeping insert below is safely recoverable by re-running
		// Apply, the way the teacher's migrations do.
		if err := m.Up(db); err != nil {
			return fmt.Errorf("migrations: apply v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Description, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("migrations: record v%d: %w", m.Version, err)
		}
	}
	return nil
}
