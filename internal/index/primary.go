package index

import (
	"context"
	"strings"
	"sync"

	"github.com/taskcore/taskcore/internal/types"
)

// Primary indexes tasks by id and by canonical (case-insensitive) path.
type Primary struct {
	mu      sync.RWMutex
	byID    map[string]*types.Task
	byPath  map[string]*types.Task // key is strings.ToLower(path)
}

// NewPrimary constructs an empty Primary index.
func NewPrimary() *Primary {
	return &Primary{
		byID:   make(map[string]*types.Task),
		byPath: make(map[string]*types.Task),
	}
}

func (p *Primary) Upsert(_ context.Context, t *types.Task) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.byID[t.ID]; ok {
		if oldKey := strings.ToLower(old.Path); oldKey != strings.ToLower(t.Path) {
			delete(p.byPath, oldKey)
		}
	}
	p.byID[t.ID] = t
	p.byPath[strings.ToLower(t.Path)] = t
	return Result{OK: true}
}

func (p *Primary) Delete(_ context.Context, id string) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.byID[id]
	if !ok {
		return Result{OK: true}
	}
	delete(p.byID, id)
	delete(p.byPath, strings.ToLower(t.Path))
	return Result{OK: true}
}

func (p *Primary) Batch(ctx context.Context, ops []Op) []Result {
	out := make([]Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpUpsert:
			out[i] = p.Upsert(ctx, op.Task)
		case OpDelete:
			out[i] = p.Delete(ctx, op.ID)
		}
	}
	return out
}

// ByID returns the task for id, or nil if absent.
func (p *Primary) ByID(id string) *types.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[id]
}

// ByPath returns the task for a case-insensitively matched path, or nil.
func (p *Primary) ByPath(path string) *types.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byPath[strings.ToLower(path)]
}

// Query ignores q and returns every known id. The indexcoord planner
// reaches it only when neither a status nor a type filter applies
// (spec §4.4's "else Primary" fallback).
func (p *Primary) Query(_ context.Context, _ Query) QueryResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	return QueryResult{IDs: ids}
}

func (p *Primary) Clear(_ context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID = make(map[string]*types.Task)
	p.byPath = make(map[string]*types.Task)
}

func (p *Primary) Stats(_ context.Context) Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{EntryCount: len(p.byID)}
}
