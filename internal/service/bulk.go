package service

import (
	"context"

	"github.com/taskcore/taskcore/internal/bulk"
	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/types"
	"github.com/taskcore/taskcore/internal/validation"
)

// BulkTasks executes an ordered batch of create/update/delete
// operations via the C10 processor, applying each item through this
// service's own Create/Update/Delete paths so every item still gets
// the full validate -> write -> index -> invalidate -> emit treatment
// (spec §4.8's bulkTasks, backed by §4.7's batch processor).
func (s *TaskService) BulkTasks(ctx context.Context, ops []bulk.Op, mode validation.Mode) (bulk.Result, error) {
	applier := bulkApplier{apply: func(ctx context.Context, op bulk.Op) error {
		switch op.Kind {
		case bulk.OpCreate:
			_, err := s.CreateTask(ctx, op.Task, mode)
			return err
		case bulk.OpUpdate:
			_, err := s.UpdateTask(ctx, op.Task, mode)
			return err
		case bulk.OpDelete:
			return s.DeleteTask(ctx, op.Key, types.DeleteBlock)
		default:
			return coreerr.Newf(coreerr.KindInternal, "unknown bulk op kind %q", op.Kind)
		}
	}}

	return bulk.New().Execute(ctx, ops, mode, applier)
}

// PropagateStatus walks the status-propagation closure rooted at
// taskID (its descendants and dependents, leaves before ancestors) and
// applies newStatus to each, per spec §4.7's cascading status update.
func (s *TaskService) PropagateStatus(ctx context.Context, taskID string, newStatus types.Status, mode validation.Mode) ([]*types.Task, error) {
	root := s.d.Index.ByID(taskID)
	if root == nil {
		return nil, coreerr.New(coreerr.KindNotFound, "task not found")
	}

	lk := closureLookup{ctx: ctx, s: s.d.Store, idx: s.d.Index}
	order, err := bulk.StatusClosure(root.Path, lk)
	if err != nil {
		return nil, err
	}

	var updated []*types.Task
	for _, path := range order {
		t := s.d.Index.ByPath(path)
		if t == nil {
			continue
		}
		next, err := s.ChangeStatus(ctx, t.ID, newStatus, mode)
		if err != nil {
			return updated, err
		}
		updated = append(updated, next)
	}
	return updated, nil
}
