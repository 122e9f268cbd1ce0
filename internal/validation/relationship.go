package validation

import (
	"context"

	"github.com/taskcore/taskcore/internal/types"
)

// RelationshipRule verifies bidirectional parent/child consistency: spec
// §3.1 defines a task's subtasks as "the set of Tasks whose parentPath
// equals the parent's path" — a view derived from the hierarchy index,
// not an independently stored list — so this rule checks the index's
// own data (every live child points its parentPath back at this task)
// rather than comparing against a caller-declared Subtasks value that
// nothing in the store persists.
type RelationshipRule struct{}

func (r *RelationshipRule) Name() string { return "relationship" }

func (r *RelationshipRule) Validate(_ context.Context, t *types.Task, lk Lookup, _ Mode) []Issue {
	var issues []Issue

	for _, child := range lk.Children(t.Path) {
		childTask := lk.ByPath(child)
		if childTask == nil {
			continue
		}
		if childTask.ParentPath != t.Path {
			issues = append(issues, Issue{Type: "parent_mismatch", Message: "child's parentPath does not point back to this task", Path: "subtasks", Value: child, Rule: r.Name(), Structural: true})
		}
	}

	return issues
}
