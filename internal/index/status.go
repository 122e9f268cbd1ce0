package index

import (
	"context"
	"sync"

	"github.com/taskcore/taskcore/internal/types"
)

// Status indexes tasks by status -> set of ids, letting queryTasks(status=X)
// avoid a full table scan.
type Status struct {
	mu       sync.RWMutex
	byStatus map[types.Status]map[string]struct{}
	idStatus map[string]types.Status // last known status per id, for Delete/re-upsert
}

// NewStatus constructs an empty Status index.
func NewStatus() *Status {
	return &Status{
		byStatus: make(map[types.Status]map[string]struct{}),
		idStatus: make(map[string]types.Status),
	}
}

func (s *Status) Upsert(_ context.Context, t *types.Task) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.idStatus[t.ID]; ok && old != t.Status {
		if set, ok := s.byStatus[old]; ok {
			delete(set, t.ID)
		}
	}
	if s.byStatus[t.Status] == nil {
		s.byStatus[t.Status] = make(map[string]struct{})
	}
	s.byStatus[t.Status][t.ID] = struct{}{}
	s.idStatus[t.ID] = t.Status
	return Result{OK: true}
}

func (s *Status) Delete(_ context.Context, id string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.idStatus[id]; ok {
		if set, ok := s.byStatus[st]; ok {
			delete(set, id)
		}
		delete(s.idStatus, id)
	}
	return Result{OK: true}
}

func (s *Status) Batch(ctx context.Context, ops []Op) []Result {
	out := make([]Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpUpsert:
			out[i] = s.Upsert(ctx, op.Task)
		case OpDelete:
			out[i] = s.Delete(ctx, op.ID)
		}
	}
	return out
}

func (s *Status) Query(_ context.Context, q Query) QueryResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byStatus[q.Status]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return QueryResult{IDs: ids}
}

func (s *Status) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStatus = make(map[types.Status]map[string]struct{})
	s.idStatus = make(map[string]types.Status)
}

func (s *Status) Stats(_ context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{EntryCount: len(s.idStatus)}
}
