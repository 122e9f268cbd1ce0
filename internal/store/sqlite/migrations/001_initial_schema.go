package migrations

import "database/sql"

// migrateInitialSchema creates the base tables for tasks, knowledge, their
// satellite records, and the edge tables used by the dependency/hierarchy
// queries in spec §4.3.
func migrateInitialSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			path TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			parent_path TEXT,
			project_id TEXT,
			notes_json TEXT NOT NULL DEFAULT '[]',
			reasoning TEXT NOT NULL DEFAULT '',
			urls_json TEXT NOT NULL DEFAULT '[]',
			tags_json TEXT NOT NULL DEFAULT '[]',
			assigned_to TEXT NOT NULL DEFAULT '',
			completion_requirements TEXT NOT NULL DEFAULT '',
			output_format TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			position INTEGER NOT NULL DEFAULT 0,
			created INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent_path ON tasks(parent_path)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(type)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id)`,

		`CREATE TABLE IF NOT EXISTS task_dependencies (
			task_id TEXT NOT NULL,
			depends_on TEXT NOT NULL,
			PRIMARY KEY (task_id, depends_on)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_deps_depends_on ON task_dependencies(depends_on)`,

		`CREATE TABLE IF NOT EXISTS knowledge (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			text TEXT NOT NULL,
			tags_json TEXT NOT NULL DEFAULT '[]',
			domain TEXT NOT NULL DEFAULT '',
			created INTEGER NOT NULL,
			updated INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_project_id ON knowledge(project_id)`,

		`CREATE TABLE IF NOT EXISTS citations (
			id TEXT PRIMARY KEY,
			knowledge_id TEXT NOT NULL,
			source TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			created INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_knowledge_id ON citations(knowledge_id)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
