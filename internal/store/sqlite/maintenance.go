package sqlite

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/types"
)

// Vacuum reclaims free pages, grounded on the teacher's
// internal/storage/sqlite/maintenance.go Vacuum.
func (s *Store) Vacuum(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlite.Vacuum")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("vacuum", err)
	}
	s.mu.Lock()
	s.lastVacuum = time.Now()
	s.mu.Unlock()
	return nil
}

// Analyze refreshes SQLite's query planner statistics.
func (s *Store) Analyze(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlite.Analyze")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("analyze", err)
	}
	return nil
}

// Checkpoint runs a PASSIVE WAL checkpoint, folding WAL frames back into
// the main database file without blocking concurrent readers.
func (s *Store) Checkpoint(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlite.Checkpoint")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("checkpoint", err)
	}
	s.mu.Lock()
	s.lastCheckpoint = time.Now()
	s.mu.Unlock()
	return nil
}

// VerifyIntegrity runs SQLite's built-in integrity_check and surfaces any
// reported corruption as a KindStorageCorrupt error.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlite.VerifyIntegrity")
	defer span.End()

	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("integrity check", err)
	}
	if result != "ok" {
		span.SetStatus(codes.Error, result)
		return wrapDBError("integrity check", &integrityError{result})
	}
	return nil
}

type integrityError struct{ detail string }

func (e *integrityError) Error() string { return "integrity check failed: " + e.detail }

// RepairRelationships walks the dependency and parent/child edges looking
// for dangling references (a dependency or parent pointing at a task id
// that no longer exists) and, unless dryRun is set, removes them. Every
// divergence found is appended to repair_log (Open Question 2).
func (s *Store) RepairRelationships(ctx context.Context, dryRun bool) (store.RepairReport, error) {
	ctx, span := tracer.Start(ctx, "sqlite.RepairRelationships", trace.WithAttributes())
	defer span.End()

	report := store.RepairReport{}

	danglingDeps, err := s.findDanglingDependencies(ctx)
	if err != nil {
		return report, err
	}
	for _, d := range danglingDeps {
		issue := "dangling dependency " + d.taskID + " -> " + d.dependsOn
		report.Issues = append(report.Issues, issue)
		if !dryRun {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ? AND depends_on = ?`, d.taskID, d.dependsOn); err != nil {
				return report, wrapDBError("repair dangling dependency", err)
			}
			report.Fixed++
		}
		if err := s.logRepair(ctx, d.taskID, issue, !dryRun); err != nil {
			return report, err
		}
	}

	danglingParents, err := s.findDanglingParents(ctx)
	if err != nil {
		return report, err
	}
	for _, taskID := range danglingParents {
		issue := "dangling parent reference on " + taskID
		report.Issues = append(report.Issues, issue)
		if !dryRun {
			if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET parent_path = NULL WHERE id = ?`, taskID); err != nil {
				return report, wrapDBError("repair dangling parent", err)
			}
			report.Fixed++
		}
		if err := s.logRepair(ctx, taskID, issue, !dryRun); err != nil {
			return report, err
		}
	}

	return report, nil
}

type danglingDep struct{ taskID, dependsOn string }

func (s *Store) findDanglingDependencies(ctx context.Context) ([]danglingDep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT td.task_id, td.depends_on FROM task_dependencies td
		LEFT JOIN tasks t ON t.id = td.depends_on
		WHERE t.id IS NULL`)
	if err != nil {
		return nil, wrapDBError("find dangling dependencies", err)
	}
	defer rows.Close()

	var out []danglingDep
	for rows.Next() {
		var d danglingDep
		if err := rows.Scan(&d.taskID, &d.dependsOn); err != nil {
			return nil, wrapDBError("scan dangling dependency", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) findDanglingParents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM tasks c
		LEFT JOIN tasks p ON p.path = c.parent_path
		WHERE c.parent_path IS NOT NULL AND p.id IS NULL`)
	if err != nil {
		return nil, wrapDBError("find dangling parents", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan dangling parent", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) logRepair(ctx context.Context, entityID, issue string, fixed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repair_log (entity_id, issue, fixed, detected_at) VALUES (?, ?, ?, ?)`,
		entityID, issue, boolToInt(fixed), time.Now().UnixMilli())
	if err != nil {
		return wrapDBError("write repair log", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetStats summarizes row counts by status and type, plus the last
// recorded checkpoint/vacuum times for the taskctl doctor command.
func (s *Store) GetStats(ctx context.Context) (store.Stats, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetStats")
	defer span.End()

	stats := store.Stats{ByStatus: map[types.Status]int64{}, ByType: map[types.TaskType]int64{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&stats.TaskCount); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return stats, wrapDBError("count tasks", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge`).Scan(&stats.KnowledgeCount); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return stats, wrapDBError("count knowledge", err)
	}

	statusRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, wrapDBError("count tasks by status", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var n int64
		if err := statusRows.Scan(&status, &n); err != nil {
			return stats, wrapDBError("scan status count", err)
		}
		stats.ByStatus[types.Status(status)] = n
	}

	typeRows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM tasks GROUP BY type`)
	if err != nil {
		return stats, wrapDBError("count tasks by type", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var t string
		var n int64
		if err := typeRows.Scan(&t, &n); err != nil {
			return stats, wrapDBError("scan type count", err)
		}
		stats.ByType[types.TaskType(t)] = n
	}

	s.mu.RLock()
	stats.LastCheckpoint = s.lastCheckpoint
	stats.LastVacuum = s.lastVacuum
	s.mu.RUnlock()

	return stats, nil
}

// GetMetrics surfaces low-level storage health counters for the
// taskctl stats command.
func (s *Store) GetMetrics(ctx context.Context) (store.Metrics, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetMetrics")
	defer span.End()

	var m store.Metrics
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&m.PageCount); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return m, wrapDBError("page count", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA freelist_count`).Scan(&m.FreelistCount); err != nil {
		return m, wrapDBError("freelist count", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA schema_version`).Scan(&m.SchemaVersion); err != nil {
		return m, wrapDBError("schema version", err)
	}

	var pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return m, wrapDBError("page size", err)
	}

	var walPages int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`).Scan(new(int), &walPages, new(int)); err != nil {
		// Older SQLite builds or a WAL file not yet created both surface
		// here as an error; WAL size is informational, not fatal.
		walPages = 0
	}
	m.WALSizeBytes = walPages * pageSize

	return m, nil
}
