package index

import (
	"context"
	"testing"

	"github.com/taskcore/taskcore/internal/types"
)

func TestPrimaryUpsertAndDelete(t *testing.T) {
	p := NewPrimary()
	ctx := context.Background()
	task := &types.Task{ID: "t1", Path: "Root/Child"}

	p.Upsert(ctx, task)
	if got := p.ByID("t1"); got == nil || got.Path != "Root/Child" {
		t.Fatalf("ByID mismatch: %+v", got)
	}
	if got := p.ByPath("root/child"); got == nil {
		t.Fatalf("ByPath should be case-insensitive")
	}

	p.Delete(ctx, "t1")
	if got := p.ByID("t1"); got != nil {
		t.Fatalf("expected deleted, got %+v", got)
	}
}

func TestStatusIndexMovesOnUpsert(t *testing.T) {
	s := NewStatus()
	ctx := context.Background()
	task := &types.Task{ID: "t1", Status: types.StatusPending}

	s.Upsert(ctx, task)
	res := s.Query(ctx, Query{Status: types.StatusPending})
	if len(res.IDs) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(res.IDs))
	}

	task.Status = types.StatusInProgress
	s.Upsert(ctx, task)

	if res := s.Query(ctx, Query{Status: types.StatusPending}); len(res.IDs) != 0 {
		t.Fatalf("expected 0 pending after move, got %d", len(res.IDs))
	}
	if res := s.Query(ctx, Query{Status: types.StatusInProgress}); len(res.IDs) != 1 {
		t.Fatalf("expected 1 in-progress, got %d", len(res.IDs))
	}
}

func TestHierarchyChildrenOrderedAndReparented(t *testing.T) {
	h := NewHierarchy()
	ctx := context.Background()

	h.Upsert(ctx, &types.Task{ID: "c1", Path: "root/b", ParentPath: "root", Type: types.TypeTask})
	h.Upsert(ctx, &types.Task{ID: "c2", Path: "root/a", ParentPath: "root", Type: types.TypeTask})

	children := h.Children("root")
	if len(children) != 2 || children[0] != "root/a" || children[1] != "root/b" {
		t.Fatalf("expected sorted children, got %v", children)
	}

	h.Upsert(ctx, &types.Task{ID: "c1", Path: "other/b", ParentPath: "other", Type: types.TypeTask})
	if children := h.Children("root"); len(children) != 1 {
		t.Fatalf("expected c1 removed from root after reparent, got %v", children)
	}
	if children := h.Children("other"); len(children) != 1 {
		t.Fatalf("expected c1 under other after reparent, got %v", children)
	}
}

func TestHierarchyQueryByType(t *testing.T) {
	h := NewHierarchy()
	ctx := context.Background()
	h.Upsert(ctx, &types.Task{ID: "m1", Path: "m", Type: types.TypeMilestone})
	h.Upsert(ctx, &types.Task{ID: "t1", Path: "t", Type: types.TypeTask})

	res := h.Query(ctx, Query{Type: types.TypeMilestone})
	if len(res.IDs) != 1 || res.IDs[0] != "m1" {
		t.Fatalf("expected [m1], got %v", res.IDs)
	}
}
