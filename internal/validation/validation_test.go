package validation

import (
	"context"
	"testing"

	"github.com/taskcore/taskcore/internal/types"
)

// fakeLookup is a minimal in-memory Lookup for exercising rules without
// the store or index packages.
type fakeLookup struct {
	byID       map[string]*types.Task
	byPath     map[string]*types.Task
	children   map[string][]string
	dependents map[string][]string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		byID:       map[string]*types.Task{},
		byPath:     map[string]*types.Task{},
		children:   map[string][]string{},
		dependents: map[string][]string{},
	}
}

func (f *fakeLookup) add(t *types.Task) {
	f.byID[t.ID] = t
	f.byPath[t.Path] = t
	if t.ParentPath != "" {
		f.children[t.ParentPath] = append(f.children[t.ParentPath], t.Path)
	}
	for _, dep := range t.Dependencies {
		f.dependents[dep] = append(f.dependents[dep], t.Path)
	}
}

func (f *fakeLookup) ByID(id string) *types.Task       { return f.byID[id] }
func (f *fakeLookup) ByPath(path string) *types.Task   { return f.byPath[path] }
func (f *fakeLookup) Children(parent string) []string  { return f.children[parent] }
func (f *fakeLookup) Dependents(path string) []string  { return f.dependents[path] }

func baseTask() *types.Task {
	return &types.Task{
		ID:       "t1",
		Path:     "alpha",
		Name:     "Alpha",
		Type:     types.TypeTask,
		Status:   types.StatusPending,
		Priority: types.PriorityMedium,
	}
}

func TestSchemaRuleRequiresName(t *testing.T) {
	task := baseTask()
	task.Name = ""
	issues := (&SchemaRule{}).Validate(context.Background(), task, newFakeLookup(), Strict)
	if len(issues) == 0 {
		t.Fatalf("expected a required-name issue")
	}
	if !issues[0].Structural {
		t.Fatalf("missing name must be structural")
	}
}

func TestSchemaRulePathSyntax(t *testing.T) {
	task := baseTask()
	task.Path = "bad path!"
	issues := (&SchemaRule{}).Validate(context.Background(), task, newFakeLookup(), Strict)
	if len(issues) == 0 {
		t.Fatalf("expected a path syntax issue")
	}
}

func TestHierarchyRuleMissingParent(t *testing.T) {
	task := baseTask()
	task.ParentPath = "missing"
	issues := (&HierarchyRule{}).Validate(context.Background(), task, newFakeLookup(), Strict)
	if len(issues) == 0 {
		t.Fatalf("expected missing_parent issue")
	}
}

func TestHierarchyRuleDuplicateSiblingName(t *testing.T) {
	lk := newFakeLookup()
	parent := baseTask()
	parent.ID = "p1"
	parent.Path = "root"
	lk.add(parent)

	sibling := baseTask()
	sibling.ID = "s1"
	sibling.Path = "root/child"
	sibling.ParentPath = "root"
	lk.add(sibling)

	task := baseTask()
	task.ID = "t2"
	task.Path = "root/CHILD"
	task.ParentPath = "root"

	issues := (&HierarchyRule{}).Validate(context.Background(), task, lk, Strict)
	found := false
	for _, iss := range issues {
		if iss.Type == "duplicate_name" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected duplicate_name issue, got %+v", issues)
	}
}

func TestDependencyRuleMissingAndSelf(t *testing.T) {
	lk := newFakeLookup()
	task := baseTask()
	task.Dependencies = []string{"t1", "ghost"}

	issues := (&DependencyRule{}).Validate(context.Background(), task, lk, Strict)
	var types_ []string
	for _, iss := range issues {
		types_ = append(types_, iss.Type)
	}
	if !containsStr(types_, "self_dependency") || !containsStr(types_, "missing_dependency") {
		t.Fatalf("expected self_dependency and missing_dependency, got %v", types_)
	}
}

func TestDependencyRuleDetectsCycle(t *testing.T) {
	lk := newFakeLookup()
	a := baseTask()
	a.ID = "a"
	a.Path = "a"
	a.Dependencies = []string{"b"}
	lk.add(a)

	b := baseTask()
	b.ID = "b"
	b.Path = "b"
	b.Dependencies = []string{"a"}
	lk.add(b)

	issues := (&DependencyRule{}).Validate(context.Background(), a, lk, Strict)
	found := false
	for _, iss := range issues {
		if iss.Type == "cycle" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cycle issue, got %+v", issues)
	}
}

func TestStatusRuleRejectsInvalidTransition(t *testing.T) {
	lk := newFakeLookup()
	prior := baseTask()
	prior.Status = types.StatusBacklog
	lk.add(prior)

	next := baseTask()
	next.Status = types.StatusInProgress

	issues := (&StatusRule{}).Validate(context.Background(), next, lk, Strict)
	if len(issues) == 0 {
		t.Fatalf("expected invalid_transition issue")
	}
}

func TestStatusRuleBlocksCompletionWithUnfinishedDependency(t *testing.T) {
	lk := newFakeLookup()
	dep := baseTask()
	dep.ID = "dep"
	dep.Path = "dep"
	dep.Status = types.StatusInProgress
	lk.add(dep)

	prior := baseTask()
	prior.Status = types.StatusInProgress
	lk.add(prior)

	next := baseTask()
	next.Status = types.StatusCompleted
	next.Dependencies = []string{"dep"}

	issues := (&StatusRule{}).Validate(context.Background(), next, lk, Strict)
	found := false
	for _, iss := range issues {
		if iss.Type == "incomplete_dependency" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected incomplete_dependency issue, got %+v", issues)
	}
}

func TestStatusRuleBlocksReopenWithCompletedDependent(t *testing.T) {
	lk := newFakeLookup()
	prior := baseTask()
	prior.ID = "base"
	prior.Path = "base"
	prior.Status = types.StatusCompleted
	lk.add(prior)

	dependent := baseTask()
	dependent.ID = "dependent"
	dependent.Path = "dependent"
	dependent.Status = types.StatusCompleted
	dependent.Dependencies = []string{"base"}
	lk.add(dependent)

	next := baseTask()
	next.ID = "base"
	next.Path = "base"
	next.Status = types.StatusPending

	issues := (&StatusRule{}).Validate(context.Background(), next, lk, Strict)
	found := false
	for _, iss := range issues {
		if iss.Type == "reopen_blocked" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reopen_blocked issue, got %+v", issues)
	}
}

func TestStatusRuleAllowsReopenWithoutCompletedDependent(t *testing.T) {
	lk := newFakeLookup()
	prior := baseTask()
	prior.ID = "base"
	prior.Path = "base"
	prior.Status = types.StatusCompleted
	lk.add(prior)

	dependent := baseTask()
	dependent.ID = "dependent"
	dependent.Path = "dependent"
	dependent.Status = types.StatusInProgress
	dependent.Dependencies = []string{"base"}
	lk.add(dependent)

	next := baseTask()
	next.ID = "base"
	next.Path = "base"
	next.Status = types.StatusPending

	issues := (&StatusRule{}).Validate(context.Background(), next, lk, Strict)
	for _, iss := range issues {
		if iss.Type == "reopen_blocked" {
			t.Fatalf("did not expect reopen_blocked when no dependent is COMPLETED, got %+v", issues)
		}
	}
}

func TestRelationshipRuleDetectsParentMismatch(t *testing.T) {
	lk := newFakeLookup()
	parent := baseTask()
	parent.ID = "p"
	parent.Path = "p"
	lk.add(parent)

	child := baseTask()
	child.ID = "c"
	child.Path = "p/c"
	child.ParentPath = "wrong"
	lk.add(child)

	issues := (&RelationshipRule{}).Validate(context.Background(), parent, lk, Strict)
	found := false
	for _, iss := range issues {
		if iss.Type == "parent_mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected parent_mismatch issue, got %+v", issues)
	}
}

// TestRelationshipRulePassesForRealParentWithChildren is a regression
// test: a parent with real children and no caller-supplied Subtasks
// (the normal case, since nothing persists that field) must still
// validate cleanly (spec.md scenario S4).
func TestRelationshipRulePassesForRealParentWithChildren(t *testing.T) {
	lk := newFakeLookup()
	parent := baseTask()
	parent.ID = "p"
	parent.Path = "p"
	lk.add(parent)

	child1 := baseTask()
	child1.ID = "c1"
	child1.Path = "p/c1"
	child1.ParentPath = "p"
	lk.add(child1)

	child2 := baseTask()
	child2.ID = "c2"
	child2.Path = "p/c2"
	child2.ParentPath = "p"
	lk.add(child2)

	issues := (&RelationshipRule{}).Validate(context.Background(), parent, lk, Strict)
	if len(issues) != 0 {
		t.Fatalf("expected no issues for a parent with consistent children, got %+v", issues)
	}
}

func TestPipelineLenientOnlyFailsOnStructural(t *testing.T) {
	p := New(Capability{})
	lk := newFakeLookup()
	task := baseTask()
	task.Description = string(make([]byte, types.MaxDescriptionLen+1))

	result := p.Run(context.Background(), task, lk, Lenient)
	if !result.OK {
		t.Fatalf("non-structural length overage must not fail LENIENT mode")
	}
	if len(result.ByRule["schema"]) == 0 {
		t.Fatalf("expected the overage to still be recorded as a warning")
	}
}

func TestPipelineStrictFailsOnAnyIssue(t *testing.T) {
	p := New(Capability{})
	lk := newFakeLookup()
	task := baseTask()
	task.Description = string(make([]byte, types.MaxDescriptionLen+1))

	result := p.Run(context.Background(), task, lk, Strict)
	if result.OK {
		t.Fatalf("STRICT mode must fail on any issue")
	}
}

func TestPipelineRuleMutationGatedByCapability(t *testing.T) {
	p := New(Capability{AllowRuleMutation: false})
	if err := p.AddRule(&SchemaRule{}); err == nil {
		t.Fatalf("expected AddRule to be rejected without capability")
	}

	p2 := New(Capability{AllowRuleMutation: true})
	if err := p2.AddRule(&SchemaRule{}); err != nil {
		t.Fatalf("AddRule should succeed with capability: %v", err)
	}
	if len(p2.Rules()) != 6 {
		t.Fatalf("expected 6 rules after append, got %d", len(p2.Rules()))
	}
}

func TestParseLegacyPriority(t *testing.T) {
	cases := map[string]types.Priority{
		"P0": types.PriorityCritical,
		"p1": types.PriorityHigh,
		"2":  types.PriorityMedium,
		"P3": types.PriorityLow,
		"P4": types.PriorityLow,
	}
	for input, want := range cases {
		got, ok := ParseLegacyPriority(input)
		if !ok || got != want {
			t.Fatalf("ParseLegacyPriority(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}
	if _, ok := ParseLegacyPriority("P9"); ok {
		t.Fatalf("expected P9 to be rejected")
	}
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
