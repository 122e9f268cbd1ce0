package bulk

import (
	"context"
	"errors"
	"testing"

	"github.com/taskcore/taskcore/internal/types"
	"github.com/taskcore/taskcore/internal/validation"
)

type recordingApplier struct {
	applied []string
	failOn  map[string]error
}

func (a *recordingApplier) Apply(_ context.Context, op Op) error {
	if err, ok := a.failOn[op.Key]; ok {
		return err
	}
	a.applied = append(a.applied, op.Key)
	return nil
}

func taskOp(key string, deps ...string) Op {
	return Op{Kind: OpCreate, Key: key, Task: &types.Task{ID: key, Path: key, Dependencies: deps}}
}

func TestProcessorOrdersByDependency(t *testing.T) {
	ops := []Op{taskOp("c", "b"), taskOp("b", "a"), taskOp("a")}
	applier := &recordingApplier{failOn: map[string]error{}}

	result, err := New().Execute(context.Background(), ops, validation.Strict, applier)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if applier.applied[i] != k {
			t.Fatalf("expected order %v, got %v", want, applier.applied)
		}
	}
	if result.Summary.Succeeded != 3 || result.Summary.Total != 3 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
}

func TestProcessorDetectsCycle(t *testing.T) {
	ops := []Op{taskOp("a", "b"), taskOp("b", "a")}
	applier := &recordingApplier{failOn: map[string]error{}}

	_, err := New().Execute(context.Background(), ops, validation.Strict, applier)
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected a CycleError, got %v", err)
	}
	if len(cycleErr.Cycle) == 0 {
		t.Fatalf("expected a non-empty cycle")
	}
}

func TestProcessorStrictAbortsOnFirstFailure(t *testing.T) {
	ops := []Op{taskOp("a"), taskOp("b"), taskOp("c")}
	applier := &recordingApplier{failOn: map[string]error{"b": errors.New("boom")}}

	result, err := New().Execute(context.Background(), ops, validation.Strict, applier)
	if err == nil {
		t.Fatalf("expected STRICT mode to return the failing error")
	}
	if len(applier.applied) != 1 || applier.applied[0] != "a" {
		t.Fatalf("expected only 'a' to have been applied before abort, got %v", applier.applied)
	}
	if result.Summary.Failed != 1 {
		t.Fatalf("expected one failure recorded, got %+v", result.Summary)
	}
}

func TestProcessorLenientSkipsAndContinues(t *testing.T) {
	ops := []Op{taskOp("a"), taskOp("b"), taskOp("c")}
	applier := &recordingApplier{failOn: map[string]error{"b": errors.New("boom")}}

	result, err := New().Execute(context.Background(), ops, validation.Lenient, applier)
	if err != nil {
		t.Fatalf("LENIENT mode should not return an error for a single item failure: %v", err)
	}
	if len(applier.applied) != 2 {
		t.Fatalf("expected 'a' and 'c' to apply despite 'b' failing, got %v", applier.applied)
	}
	if result.Summary.Failed != 1 || result.Summary.Succeeded != 2 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
}

func TestProcessorRejectsOversizedCreateBatch(t *testing.T) {
	ops := make([]Op, MaxCreatesPerBatch+1)
	for i := range ops {
		ops[i] = taskOp(string(rune('a' + i%26)))
	}
	applier := &recordingApplier{failOn: map[string]error{}}
	if _, err := New().Execute(context.Background(), ops, validation.Strict, applier); err == nil {
		t.Fatalf("expected oversized batch to be rejected")
	}
}

func TestProcessorCancellationMarksRemainingCancelled(t *testing.T) {
	ops := []Op{taskOp("a"), taskOp("b"), taskOp("c")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	applier := &recordingApplier{failOn: map[string]error{}}
	result, err := New().Execute(ctx, ops, validation.Lenient, applier)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, o := range result.Outcomes {
		if o.Status != OutcomeCancelled {
			t.Fatalf("expected all outcomes cancelled, got %+v", o)
		}
	}
}

type fakeClosureLookup struct {
	children   map[string][]string
	dependents map[string][]string
}

func (f *fakeClosureLookup) Children(parent string) []string  { return f.children[parent] }
func (f *fakeClosureLookup) Dependents(id string) []string    { return f.dependents[id] }

func TestStatusClosureOrdersLeavesBeforeAncestors(t *testing.T) {
	lk := &fakeClosureLookup{
		children: map[string][]string{
			"m": {"c1", "c2"},
		},
	}
	order, err := StatusClosure("m", lk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := map[string]int{}
	for i, k := range order {
		pos[k] = i
	}
	if pos["c1"] > pos["m"] || pos["c2"] > pos["m"] {
		t.Fatalf("expected children before parent, got order %v", order)
	}
}
