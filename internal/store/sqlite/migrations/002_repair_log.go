package migrations

import "database/sql"

// migrateRepairLog adds the repair_log table that RepairRelationships
// writes each of its findings to (Open Question 2, see DESIGN.md). The
// index coordinator's non-atomic divergences are logged, not stored here.
func migrateRepairLog(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS repair_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id TEXT NOT NULL,
			issue TEXT NOT NULL,
			fixed INTEGER NOT NULL DEFAULT 0,
			detected_at INTEGER NOT NULL
		)
	`)
	return err
}
