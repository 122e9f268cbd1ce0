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

// CreateKnowledge inserts a knowledge row and its citation satellites.
// Knowledge sits outside the Task dependency DAG (Open Question 4, see
// DESIGN.md): citations are a flat one-to-many, never a graph edge.
func (s *Store) CreateKnowledge(ctx context.Context, tx store.Tx, k *types.Knowledge) error {
	ctx, span := tracer.Start(ctx, "sqlite.CreateKnowledge", trace.WithAttributes(attribute.String("knowledge.id", k.ID)))
	defer span.End()

	tagsJSON, err := json.Marshal(emptyIfNilStr(k.Tags))
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "marshal knowledge tags")
	}

	exec := s.execerFor(asTx(tx))
	_, err = exec.ExecContext(ctx, `
		INSERT INTO knowledge (id, project_id, text, tags_json, domain, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, nullableString(k.ProjectID), k.Text, string(tagsJSON), k.Domain, k.Created, k.Updated,
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("insert knowledge", err)
	}

	if err := s.replaceCitations(ctx, exec, k.ID, k.Citations); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// UpdateKnowledge overwrites a knowledge row and its citations.
func (s *Store) UpdateKnowledge(ctx context.Context, tx store.Tx, k *types.Knowledge) error {
	ctx, span := tracer.Start(ctx, "sqlite.UpdateKnowledge", trace.WithAttributes(attribute.String("knowledge.id", k.ID)))
	defer span.End()

	tagsJSON, err := json.Marshal(emptyIfNilStr(k.Tags))
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "marshal knowledge tags")
	}

	exec := s.execerFor(asTx(tx))
	res, err := exec.ExecContext(ctx, `
		UPDATE knowledge SET project_id = ?, text = ?, tags_json = ?, domain = ?, updated = ?
		WHERE id = ?`,
		nullableString(k.ProjectID), k.Text, string(tagsJSON), k.Domain, k.Updated, k.ID,
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("update knowledge", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coreerr.New(coreerr.KindNotFound, "knowledge not found: "+k.ID)
	}

	if err := s.replaceCitations(ctx, exec, k.ID, k.Citations); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// DeleteKnowledge removes a knowledge row and its citations.
func (s *Store) DeleteKnowledge(ctx context.Context, tx store.Tx, id string) error {
	ctx, span := tracer.Start(ctx, "sqlite.DeleteKnowledge", trace.WithAttributes(attribute.String("knowledge.id", id)))
	defer span.End()

	exec := s.execerFor(asTx(tx))
	if _, err := exec.ExecContext(ctx, `DELETE FROM citations WHERE knowledge_id = ?`, id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("delete citations", err)
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM knowledge WHERE id = ?`, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return wrapDBError("delete knowledge", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coreerr.New(coreerr.KindNotFound, "knowledge not found: "+id)
	}
	return nil
}

func (s *Store) replaceCitations(ctx context.Context, exec execer, knowledgeID string, cites []types.Citation) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM citations WHERE knowledge_id = ?`, knowledgeID); err != nil {
		return wrapDBError("clear citations", err)
	}
	for _, c := range cites {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO citations (id, knowledge_id, source, reference, created) VALUES (?, ?, ?, ?, ?)`,
			c.ID, knowledgeID, c.Source, c.Reference, c.Created,
		); err != nil {
			return wrapDBError("insert citation", err)
		}
	}
	return nil
}

// GetKnowledge fetches a knowledge item by id along with its citations.
func (s *Store) GetKnowledge(ctx context.Context, id string) (*types.Knowledge, error) {
	ctx, span := tracer.Start(ctx, "sqlite.GetKnowledge", trace.WithAttributes(attribute.String("knowledge.id", id)))
	defer span.End()

	var k types.Knowledge
	var projectID sql.NullString
	var tagsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, text, tags_json, domain, created, updated FROM knowledge WHERE id = ?`, id,
	).Scan(&k.ID, &projectID, &k.Text, &tagsJSON, &k.Domain, &k.Created, &k.Updated)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("get knowledge", err)
	}
	k.ProjectID = projectID.String
	if err := json.Unmarshal([]byte(tagsJSON), &k.Tags); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, err, "unmarshal knowledge tags")
	}

	cites, err := s.loadCitations(ctx, k.ID)
	if err != nil {
		return nil, err
	}
	k.Citations = cites
	return &k, nil
}

// ListKnowledge returns every knowledge item with its citations, used by
// the backup/export path which needs a full snapshot rather than a
// filtered page.
func (s *Store) ListKnowledge(ctx context.Context) ([]*types.Knowledge, error) {
	ctx, span := tracer.Start(ctx, "sqlite.ListKnowledge")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, text, tags_json, domain, created, updated FROM knowledge ORDER BY id`)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("list knowledge", err)
	}
	defer rows.Close()

	var out []*types.Knowledge
	for rows.Next() {
		var k types.Knowledge
		var projectID sql.NullString
		var tagsJSON string
		if err := rows.Scan(&k.ID, &projectID, &k.Text, &tagsJSON, &k.Domain, &k.Created, &k.Updated); err != nil {
			return nil, wrapDBError("scan knowledge", err)
		}
		k.ProjectID = projectID.String
		if err := json.Unmarshal([]byte(tagsJSON), &k.Tags); err != nil {
			return nil, coreerr.Wrap(coreerr.KindInternal, err, "unmarshal knowledge tags")
		}
		out = append(out, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, k := range out {
		cites, err := s.loadCitations(ctx, k.ID)
		if err != nil {
			return nil, err
		}
		k.Citations = cites
	}
	return out, nil
}

func (s *Store) loadCitations(ctx context.Context, knowledgeID string) ([]types.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, reference, created FROM citations WHERE knowledge_id = ? ORDER BY created`, knowledgeID)
	if err != nil {
		return nil, wrapDBError("load citations", err)
	}
	defer rows.Close()

	var out []types.Citation
	for rows.Next() {
		var c types.Citation
		if err := rows.Scan(&c.ID, &c.Source, &c.Reference, &c.Created); err != nil {
			return nil, wrapDBError("scan citation", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
