package indexcoord

import (
	"context"
	"testing"

	"github.com/taskcore/taskcore/internal/index"
	"github.com/taskcore/taskcore/internal/types"
)

func TestUpsertAtomicAppliesToAllIndexes(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	task := &types.Task{ID: "t1", Path: "root", Status: types.StatusPending, Type: types.TypeTask}

	if err := c.Upsert(ctx, task, Atomic); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got := c.ByID("t1"); got == nil {
		t.Fatalf("expected primary index populated")
	}
	res := c.Query(ctx, index.Query{Status: types.StatusPending})
	if len(res.IDs) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(res.IDs))
	}
}

func TestDeleteRemovesFromAllIndexes(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	task := &types.Task{ID: "t1", Path: "root", Status: types.StatusPending, Type: types.TypeTask}

	if err := c.Upsert(ctx, task, Atomic); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Delete(ctx, "t1", Atomic); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := c.ByID("t1"); got != nil {
		t.Fatalf("expected removed, got %+v", got)
	}
}

func TestBatchRejectsOversizedBatch(t *testing.T) {
	c := New(nil)
	ops := make([]index.Op, MaxBatchSize+1)
	for i := range ops {
		ops[i] = index.Op{Kind: index.OpUpsert, Task: &types.Task{ID: "x"}}
	}
	err := c.Batch(context.Background(), ops, NonAtomic)
	if err == nil {
		t.Fatalf("expected LIMIT_EXCEEDED error")
	}
}

func TestQueryPlannerSelectsNarrowestIndex(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	c.Upsert(ctx, &types.Task{ID: "m1", Path: "m", Type: types.TypeMilestone, Status: types.StatusPending}, Atomic)

	byType := c.Query(ctx, index.Query{Type: types.TypeMilestone})
	if len(byType.IDs) != 1 {
		t.Fatalf("expected type query to hit hierarchy index, got %v", byType.IDs)
	}

	byStatus := c.Query(ctx, index.Query{Status: types.StatusPending})
	if len(byStatus.IDs) != 1 {
		t.Fatalf("expected status query to hit status index, got %v", byStatus.IDs)
	}
}
