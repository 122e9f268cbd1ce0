package sqlite

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/types"
)

// GetByPath fetches a task by its unique hierarchical path.
func (s *Store) GetByPath(ctx context.Context, path string) (*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetByPath", trace.WithAttributes(attribute.String("task.path", path)))
	defer span.End()

	row := s.db.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE path = ?`, path)
	t, err := scanTask(row)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get task by path", err)
	}
	if err := s.loadDependencies(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByIDList fetches every task matching the given ids, in no particular
// order; ids with no matching row are simply absent from the result.
func (s *Store) GetByIDList(ctx context.Context, ids []string) ([]*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetByIDList", trace.WithAttributes(attribute.Int("task.id_count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get tasks by id list", err)
	}
	return s.scanTaskRows(ctx, rows)
}

// GetByPattern fetches tasks whose path matches a SQL GLOB pattern, e.g.
// "proj1/*". SQLite's GLOB "*" also matches "/", so "proj1/*" (like
// "proj1/**") matches the whole subtree, not only direct children.
func (s *Store) GetByPattern(ctx context.Context, glob string) ([]*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetByPattern", trace.WithAttributes(attribute.String("task.pattern", glob)))
	defer span.End()

	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks WHERE path GLOB ? ORDER BY path`, sqlGlob(glob))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get tasks by pattern", err)
	}
	return s.scanTaskRows(ctx, rows)
}

// GetByStatus fetches every task currently in the given status.
func (s *Store) GetByStatus(ctx context.Context, status types.Status) ([]*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetByStatus", trace.WithAttributes(attribute.String("task.status", string(status))))
	defer span.End()

	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks WHERE status = ? ORDER BY path`, string(status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get tasks by status", err)
	}
	return s.scanTaskRows(ctx, rows)
}

// GetChildren fetches the direct children of a parent path (one level,
// not the whole subtree).
func (s *Store) GetChildren(ctx context.Context, parentPath string) ([]*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetChildren", trace.WithAttributes(attribute.String("task.parent_path", parentPath)))
	defer span.End()

	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks WHERE parent_path = ? ORDER BY position, path`, parentPath)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get children", err)
	}
	return s.scanTaskRows(ctx, rows)
}

// GetDependents fetches every task that declares a dependency on the task
// at the given path.
func (s *Store) GetDependents(ctx context.Context, path string) ([]*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetDependents", trace.WithAttributes(attribute.String("task.path", path)))
	defer span.End()

	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE path = ?`, path).Scan(&id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("resolve path for dependents", err)
	}

	rows, err := s.db.QueryContext(ctx, taskSelectColumns+`
		FROM tasks WHERE id IN (SELECT task_id FROM task_dependencies WHERE depends_on = ?) ORDER BY path`, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get dependents", err)
	}
	return s.scanTaskRows(ctx, rows)
}

// ListTasks runs a filtered, paginated query over tasks and returns the
// total match count alongside the page, grounded on the teacher's
// internal/storage/sqlite/queries.go ListIssues.
func (s *Store) ListTasks(ctx context.Context, f store.Filter, offset, limit int) ([]*types.Task, int, error) {
	ctx, span := tracer.Start(ctx, "sqlite.ListTasks")
	defer span.End()

	where, args := buildFilterClause(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, wrapDBError("count tasks", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks`+where+` ORDER BY path LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, wrapDBError("list tasks", err)
	}
	tasks, err := s.scanTaskRows(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func buildFilterClause(f store.Filter) (string, []any) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.ParentPath != "" {
		conds = append(conds, "parent_path = ?")
		args = append(args, f.ParentPath)
	}
	if f.Pattern != "" {
		conds = append(conds, "path GLOB ?")
		args = append(args, sqlGlob(f.Pattern))
	}
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	for _, tag := range f.Tags {
		conds = append(conds, "tags_json LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) scanTaskRows(ctx context.Context, rows interface {
	Close() error
	Next() bool
	Err() error
	Scan(dest ...any) error
}) ([]*types.Task, error) {
	defer rows.Close()
	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan task row", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate task rows", err)
	}
	for _, t := range out {
		if err := s.loadDependencies(ctx, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func inClause(ids []string) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}

// sqlGlob translates the core's "**" recursive-descent wildcard into a
// SQLite GLOB-compatible pattern by folding it to "*", which in SQLite's
// GLOB already matches across "/" separators.
func sqlGlob(pattern string) string {
	return strings.ReplaceAll(pattern, "**", "*")
}
