package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/types"
)

// CreateTask inserts a new task row and its dependency edges, grounded on
// the teacher's internal/storage/sqlite/issues.go CreateIssue.
func (s *Store) CreateTask(ctx context.Context, tx store.Tx, t *types.Task) error {
	return s.createTask(ctx, asTx(tx), t)
}

func (s *Store) createTask(ctx context.Context, tx *sqlTx, t *types.Task) error {
	ctx, span := tracer.Start(ctx, "sqlite.CreateTask", trace.WithAttributes(attribute.String("task.id", t.ID)))
	defer span.End()

	notesJSON, urlsJSON, tagsJSON, metaJSON, err := marshalTaskSidecars(t)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return coreerr.Wrap(coreerr.KindInternal, err, "marshal task sidecars")
	}

	exec := s.execerFor(tx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO tasks (
			id, path, name, description, type, status, priority, parent_path, project_id,
			notes_json, reasoning, urls_json, tags_json, assigned_to,
			completion_requirements, output_format, metadata_json, position, created, updated, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		t.ID, t.Path, t.Name, t.Description, string(t.Type), string(t.Status), string(t.Priority),
		nullableString(t.ParentPath), nullableString(t.ProjectID),
		notesJSON, t.Reasoning, urlsJSON, tagsJSON, t.AssignedTo,
		t.CompletionRequirements, t.OutputFormat, metaJSON, t.Created, t.Updated, t.Version,
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("insert task", err)
	}

	if err := s.replaceDependencies(ctx, exec, t.ID, t.Dependencies); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// UpdateTask overwrites an existing task row and its dependency edges.
func (s *Store) UpdateTask(ctx context.Context, tx store.Tx, t *types.Task) error {
	return s.updateTask(ctx, asTx(tx), t)
}

func (s *Store) updateTask(ctx context.Context, tx *sqlTx, t *types.Task) error {
	ctx, span := tracer.Start(ctx, "sqlite.UpdateTask", trace.WithAttributes(attribute.String("task.id", t.ID)))
	defer span.End()

	notesJSON, urlsJSON, tagsJSON, metaJSON, err := marshalTaskSidecars(t)
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "marshal task sidecars")
	}

	exec := s.execerFor(tx)
	res, err := exec.ExecContext(ctx, `
		UPDATE tasks SET
			path = ?, name = ?, description = ?, type = ?, status = ?, priority = ?,
			parent_path = ?, project_id = ?, notes_json = ?, reasoning = ?, urls_json = ?,
			tags_json = ?, assigned_to = ?, completion_requirements = ?, output_format = ?,
			metadata_json = ?, updated = ?, version = version + 1
		WHERE id = ?`,
		t.Path, t.Name, t.Description, string(t.Type), string(t.Status), string(t.Priority),
		nullableString(t.ParentPath), nullableString(t.ProjectID), notesJSON, t.Reasoning,
		urlsJSON, tagsJSON, t.AssignedTo, t.CompletionRequirements, t.OutputFormat,
		metaJSON, t.Updated, t.ID,
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coreerr.New(coreerr.KindNotFound, "task not found: "+t.ID)
	}

	if err := s.replaceDependencies(ctx, exec, t.ID, t.Dependencies); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// DeleteTask removes a task row and its dependency edges in both directions.
func (s *Store) DeleteTask(ctx context.Context, tx store.Tx, id string) error {
	return s.deleteTask(ctx, asTx(tx), id)
}

func (s *Store) deleteTask(ctx context.Context, tx *sqlTx, id string) error {
	ctx, span := tracer.Start(ctx, "sqlite.DeleteTask", trace.WithAttributes(attribute.String("task.id", id)))
	defer span.End()

	exec := s.execerFor(tx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ? OR depends_on = ?`, id, id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("delete task dependency edges", err)
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coreerr.New(coreerr.KindNotFound, "task not found: "+id)
	}
	return nil
}

func (s *Store) replaceDependencies(ctx context.Context, exec execer, taskID string, deps []string) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, taskID); err != nil {
		return wrapDBError("clear task dependencies", err)
	}
	for _, dep := range deps {
		if _, err := exec.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies (task_id, depends_on) VALUES (?, ?)`, taskID, dep); err != nil {
			return wrapDBError("insert task dependency", err)
		}
	}
	return nil
}

// GetTask fetches a single task by id, including its dependency list.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetTask", trace.WithAttributes(attribute.String("task.id", id)))
	defer span.End()

	row := s.db.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get task", err)
	}
	if err := s.loadDependencies(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

const taskSelectColumns = `SELECT
	id, path, name, description, type, status, priority, parent_path, project_id,
	notes_json, reasoning, urls_json, tags_json, assigned_to,
	completion_requirements, output_format, metadata_json, created, updated, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var t types.Task
	var parentPath, projectID sql.NullString
	var notesJSON, urlsJSON, tagsJSON, metaJSON string

	err := row.Scan(
		&t.ID, &t.Path, &t.Name, &t.Description, &t.Type, &t.Status, &t.Priority,
		&parentPath, &projectID, &notesJSON, &t.Reasoning, &urlsJSON, &tagsJSON,
		&t.AssignedTo, &t.CompletionRequirements, &t.OutputFormat, &metaJSON,
		&t.Created, &t.Updated, &t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.ParentPath = parentPath.String
	t.ProjectID = projectID.String

	if err := json.Unmarshal([]byte(notesJSON), &t.Notes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urlsJSON), &t.URLs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) loadDependencies(ctx context.Context, t *types.Task) error {
	rows, err := s.db.QueryContext(ctx, `SELECT depends_on FROM task_dependencies WHERE task_id = ? ORDER BY depends_on`, t.ID)
	if err != nil {
		return wrapDBError("load dependencies", err)
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return wrapDBError("scan dependency", err)
		}
		deps = append(deps, d)
	}
	t.Dependencies = deps
	return rows.Err()
}

func marshalTaskSidecars(t *types.Task) (notes, urls, tags, meta string, err error) {
	nb, err := json.Marshal(emptyIfNil(t.Notes))
	if err != nil {
		return
	}
	ub, err := json.Marshal(emptyIfNilStr(t.URLs))
	if err != nil {
		return
	}
	tb, err := json.Marshal(emptyIfNilStr(t.Tags))
	if err != nil {
		return
	}
	mb, err := json.Marshal(t.Metadata)
	if err != nil {
		return
	}
	return string(nb), string(ub), string(tb), string(mb), nil
}

func emptyIfNil(n []types.Note) []types.Note {
	if n == nil {
		return []types.Note{}
	}
	return n
}

func emptyIfNilStr(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func asTx(v store.Tx) *sqlTx {
	if v == nil {
		return nil
	}
	if t, ok := v.(*sqlTx); ok {
		return t
	}
	return nil
}
