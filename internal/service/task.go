package service

import (
	"context"
	"strings"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
	"github.com/taskcore/taskcore/internal/validation"
)

// TaskService exposes the task-facing operations of spec §4.8.
type TaskService struct {
	d Deps
}

func (s *TaskService) lookup(ctx context.Context) validation.Lookup {
	return indexLookup{ctx: ctx, idx: s.d.Index, store: s.d.Store}
}

// invalidateTask drops both the ID- and path-keyed cache entries for a
// task, since GetTask caches under whichever of the two the caller
// looked it up by.
func (s *TaskService) invalidateTask(t *types.Task) {
	s.d.Cache.Invalidate(taskCacheKey(t.ID))
	s.d.Cache.Invalidate(taskCacheKey(t.Path))
}

// CreateTask validates, persists, indexes, invalidates, and emits a new
// Task inside a single C4 scope. If t.Path is empty it is derived from
// t.Name by the caller's idgen.Slugify before calling CreateTask.
func (s *TaskService) CreateTask(ctx context.Context, t *types.Task, mode validation.Mode) (*types.Task, error) {
	t.Path = strings.TrimSuffix(t.Path, "/")
	if t.ParentPath == "" {
		t.ParentPath = types.ParentPath(t.Path)
	}
	if t.ID == "" {
		t.ID = mintTaskID()
	}
	if t.Status == "" {
		t.Status = types.StatusBacklog
	}
	if t.Priority == "" {
		t.Priority = types.PriorityMedium
	}

	if existing := findDuplicateName(s.d.Index, t.ParentPath, t.Path, t.ID); existing != "" {
		return nil, duplicateNameError(t.Path)
	}

	result := s.d.Validation.Run(ctx, t, s.lookup(ctx), mode)
	if !result.OK {
		return nil, validationError(result)
	}

	now := s.d.Clock.Now()
	t.Created, t.Updated, t.Version = now, now, 1

	err := withTx(ctx, s.d, txn.Immediate, func(ctx context.Context, tx store.Tx) error {
		if err := s.d.Store.CreateTask(ctx, tx, t); err != nil {
			return err
		}
		if err := s.d.Index.Upsert(ctx, t, indexcoord.Atomic); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTask(t)
	s.emit(ctx, eventbus.EventTaskCreated, t)
	return t, nil
}

// UpdateTask applies a partial update (merged into the existing Task by
// the caller before calling this) and re-runs validation against the
// prior state for transition checks.
func (s *TaskService) UpdateTask(ctx context.Context, t *types.Task, mode validation.Mode) (*types.Task, error) {
	prior := s.d.Index.ByID(t.ID)

	result := s.d.Validation.Run(ctx, t, s.lookup(ctx), mode)
	if !result.OK {
		return nil, validationError(result)
	}

	t.Updated = s.d.Clock.Now()
	t.Version++

	err := withTx(ctx, s.d, txn.Immediate, func(ctx context.Context, tx store.Tx) error {
		if err := s.d.Store.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		return s.d.Index.Upsert(ctx, t, indexcoord.Atomic)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTask(t)
	if prior != nil && prior.Path != t.Path {
		s.d.Cache.Invalidate(taskCacheKey(prior.Path))
	}
	s.emit(ctx, eventbus.EventTaskUpdated, t)
	return t, nil
}

// DeleteTask removes a Task, applying strategy to its children:
// DeleteCascade removes descendants first, DeleteBlock fails with
// HAS_CHILDREN if any exist.
func (s *TaskService) DeleteTask(ctx context.Context, id string, strategy types.DeleteStrategy) error {
	t := s.d.Index.ByID(id)
	if t == nil {
		return coreerr.New(coreerr.KindNotFound, "task not found")
	}

	children := s.d.Index.Children(t.Path)
	if len(children) > 0 && strategy == types.DeleteBlock {
		return coreerr.New(coreerr.KindHasChildren, "task has children; use cascade to delete them")
	}

	dependents, err := s.d.Store.GetDependents(ctx, t.Path)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return coreerr.New(coreerr.KindHasDependents, "task has dependents; remove the dependency first")
	}

	toDelete := []string{id}
	if strategy == types.DeleteCascade {
		descendants, err := s.collectDescendants(ctx, t.Path)
		if err != nil {
			return err
		}
		toDelete = append(toDelete, descendants...)
	}

	return withTx(ctx, s.d, txn.Immediate, func(ctx context.Context, tx store.Tx) error {
		// Delete children before parents so no intermediate state has an
		// orphaned parentPath reference.
		for i := len(toDelete) - 1; i >= 0; i-- {
			tid := toDelete[i]
			deleted := s.d.Index.ByID(tid)
			if err := s.d.Store.DeleteTask(ctx, tx, tid); err != nil {
				return err
			}
			if err := s.d.Index.Delete(ctx, tid, indexcoord.Atomic); err != nil {
				return err
			}
			s.d.Cache.Invalidate(taskCacheKey(tid))
			if deleted != nil {
				s.d.Cache.Invalidate(taskCacheKey(deleted.Path))
			}
		}
		return nil
	})
}

func (s *TaskService) collectDescendants(ctx context.Context, rootPath string) ([]string, error) {
	var out []string
	var walk func(path string)
	walk = func(path string) {
		for _, childPath := range s.d.Index.Children(path) {
			if child := s.d.Index.ByPath(childPath); child != nil {
				out = append(out, child.ID)
				walk(childPath)
			}
		}
	}
	walk(rootPath)
	return out, nil
}

// GetTask resolves a Task by id or path, consulting the cache first.
func (s *TaskService) GetTask(ctx context.Context, idOrPath string) (*types.Task, error) {
	key := taskCacheKey(idOrPath)
	if v, _, ok := s.d.Cache.Get(key); ok {
		return v.(*types.Task), nil
	}

	if t := s.d.Index.ByID(idOrPath); t != nil {
		s.d.Cache.Set(key, t, t.Version)
		return t, nil
	}
	if t := s.d.Index.ByPath(idOrPath); t != nil {
		s.d.Cache.Set(key, t, t.Version)
		return t, nil
	}

	t, err := s.d.Store.GetTask(ctx, idOrPath)
	if err != nil {
		t, err = s.d.Store.GetByPath(ctx, idOrPath)
	}
	if err != nil {
		return nil, err
	}
	s.d.Cache.Set(key, t, t.Version)
	return t, nil
}

// QueryTasks lists tasks matching f with offset/limit pagination,
// clamped per spec §4.8 defaults (limit=20, ceiling=100).
func (s *TaskService) QueryTasks(ctx context.Context, f store.Filter, page types.Page) (types.PageResult[*types.Task], error) {
	page = page.Normalize()
	items, total, err := s.d.Store.ListTasks(ctx, f, page.Offset, page.Limit)
	if err != nil {
		return types.PageResult[*types.Task]{}, err
	}
	return types.NewPageResult(items, page.Offset, page.Limit, total), nil
}

// AddDependency appends dep to t's Dependencies and re-validates.
func (s *TaskService) AddDependency(ctx context.Context, taskID, dep string, mode validation.Mode) (*types.Task, error) {
	t := s.d.Index.ByID(taskID)
	if t == nil {
		return nil, coreerr.New(coreerr.KindNotFound, "task not found")
	}
	for _, existing := range t.Dependencies {
		if existing == dep {
			return t, nil
		}
	}
	updated := *t
	updated.Dependencies = append(append([]string{}, t.Dependencies...), dep)
	return s.UpdateTask(ctx, &updated, mode)
}

// RemoveDependency removes dep from t's Dependencies.
func (s *TaskService) RemoveDependency(ctx context.Context, taskID, dep string, mode validation.Mode) (*types.Task, error) {
	t := s.d.Index.ByID(taskID)
	if t == nil {
		return nil, coreerr.New(coreerr.KindNotFound, "task not found")
	}
	updated := *t
	updated.Dependencies = nil
	for _, existing := range t.Dependencies {
		if existing != dep {
			updated.Dependencies = append(updated.Dependencies, existing)
		}
	}
	return s.UpdateTask(ctx, &updated, mode)
}

// ChangeStatus moves a task to newStatus, validated against the
// transition table by StatusRule.
func (s *TaskService) ChangeStatus(ctx context.Context, taskID string, newStatus types.Status, mode validation.Mode) (*types.Task, error) {
	t := s.d.Index.ByID(taskID)
	if t == nil {
		return nil, coreerr.New(coreerr.KindNotFound, "task not found")
	}
	updated := *t
	updated.Status = newStatus
	return s.UpdateTask(ctx, &updated, mode)
}

// AddNote appends a note to the task.
func (s *TaskService) AddNote(ctx context.Context, taskID string, note types.Note, mode validation.Mode) (*types.Task, error) {
	t := s.d.Index.ByID(taskID)
	if t == nil {
		return nil, coreerr.New(coreerr.KindNotFound, "task not found")
	}
	if note.Created == 0 {
		note.Created = s.d.Clock.Now()
	}
	updated := *t
	updated.Notes = append(append([]types.Note{}, t.Notes...), note)
	return s.UpdateTask(ctx, &updated, mode)
}

// MoveTask reparents a task under newParentPath, re-deriving its path
// from its own current name and detecting DUPLICATE_NAME under the new
// parent.
func (s *TaskService) MoveTask(ctx context.Context, taskID, newParentPath string, mode validation.Mode) (*types.Task, error) {
	t := s.d.Index.ByID(taskID)
	if t == nil {
		return nil, coreerr.New(coreerr.KindNotFound, "task not found")
	}
	newPath := newParentPath + "/" + lastSegment(t.Path)
	if newParentPath == "" {
		newPath = lastSegment(t.Path)
	}
	if existing := findDuplicateName(s.d.Index, newParentPath, newPath, t.ID); existing != "" {
		return nil, duplicateNameError(newPath)
	}

	updated := *t
	updated.Path = newPath
	updated.ParentPath = newParentPath
	return s.UpdateTask(ctx, &updated, mode)
}

func (s *TaskService) emit(ctx context.Context, et eventbus.EventType, t *types.Task) {
	_, _ = s.d.Bus.Dispatch(ctx, &eventbus.Event{
		Type:      et,
		EntityID:  t.ID,
		Path:      t.Path,
		Timestamp: s.d.Clock.Now(),
		Payload:   map[string]any{"status": string(t.Status), "version": t.Version},
	})
}

func taskCacheKey(idOrPath string) string {
	key, _ := cacheFingerprint("task", idOrPath)
	return key
}

func validationError(r validation.Result) error {
	err := coreerr.New(coreerr.KindValidation, "task failed validation")
	details := map[string]any{}
	for rule, issues := range r.ByRule {
		details[rule] = issues
	}
	return err.WithDetails(details)
}
