package index

import (
	"context"
	"sort"
	"sync"

	"github.com/taskcore/taskcore/internal/types"
)

// Hierarchy indexes tasks by parentPath -> ordered child paths, and by
// type -> set of ids.
type Hierarchy struct {
	mu       sync.RWMutex
	children map[string][]string // parentPath -> child paths, kept sorted by path
	byType   map[types.TaskType]map[string]struct{}
	known    map[string]*types.Task // id -> last known task, to compute deltas on re-upsert
}

// NewHierarchy constructs an empty Hierarchy index.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		children: make(map[string][]string),
		byType:   make(map[types.TaskType]map[string]struct{}),
		known:    make(map[string]*types.Task),
	}
}

func (h *Hierarchy) Upsert(_ context.Context, t *types.Task) Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.known[t.ID]; ok {
		if old.ParentPath != t.ParentPath || old.Path != t.Path {
			h.removeChild(old.ParentPath, old.Path)
		}
		if old.Type != t.Type {
			if set, ok := h.byType[old.Type]; ok {
				delete(set, t.ID)
			}
		}
	}

	if t.ParentPath != "" {
		h.addChild(t.ParentPath, t.Path)
	}
	if h.byType[t.Type] == nil {
		h.byType[t.Type] = make(map[string]struct{})
	}
	h.byType[t.Type][t.ID] = struct{}{}

	cp := *t
	h.known[t.ID] = &cp
	return Result{OK: true}
}

func (h *Hierarchy) addChild(parentPath, childPath string) {
	children := h.children[parentPath]
	for _, c := range children {
		if c == childPath {
			return
		}
	}
	children = append(children, childPath)
	sort.Strings(children)
	h.children[parentPath] = children
}

func (h *Hierarchy) removeChild(parentPath, childPath string) {
	children := h.children[parentPath]
	for i, c := range children {
		if c == childPath {
			h.children[parentPath] = append(children[:i], children[i+1:]...)
			return
		}
	}
}

func (h *Hierarchy) Delete(_ context.Context, id string) Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	old, ok := h.known[id]
	if !ok {
		return Result{OK: true}
	}
	h.removeChild(old.ParentPath, old.Path)
	if set, ok := h.byType[old.Type]; ok {
		delete(set, id)
	}
	delete(h.known, id)
	return Result{OK: true}
}

func (h *Hierarchy) Batch(ctx context.Context, ops []Op) []Result {
	out := make([]Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpUpsert:
			out[i] = h.Upsert(ctx, op.Task)
		case OpDelete:
			out[i] = h.Delete(ctx, op.ID)
		}
	}
	return out
}

// Query resolves either a parentPath lookup (ordered children) or a type
// lookup (unordered id set), matching whichever field of q is populated.
func (h *Hierarchy) Query(_ context.Context, q Query) QueryResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if q.ParentPath != "" {
		children := h.children[q.ParentPath]
		ids := make([]string, 0, len(children))
		for _, path := range children {
			for id, t := range h.known {
				if t.Path == path {
					ids = append(ids, id)
					break
				}
			}
		}
		return QueryResult{IDs: ids}
	}

	set := h.byType[q.Type]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return QueryResult{IDs: ids}
}

// Children returns the ordered child paths of parentPath directly,
// avoiding the Query interface's id-resolution indirection for callers
// that already want paths (the store's GetChildren equivalent path).
func (h *Hierarchy) Children(parentPath string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.children[parentPath]))
	copy(out, h.children[parentPath])
	return out
}

func (h *Hierarchy) Clear(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.children = make(map[string][]string)
	h.byType = make(map[types.TaskType]map[string]struct{})
	h.known = make(map[string]*types.Task)
}

func (h *Hierarchy) Stats(_ context.Context) Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{EntryCount: len(h.known)}
}
