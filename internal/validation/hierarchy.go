package validation

import (
	"context"
	"path"
	"strings"

	"github.com/taskcore/taskcore/internal/types"
)

// HierarchyRule verifies the parent exists, depth stays within bound,
// and a child's name is unique among its siblings (spec §4.5).
type HierarchyRule struct{}

func (r *HierarchyRule) Name() string { return "hierarchy" }

func (r *HierarchyRule) Validate(_ context.Context, t *types.Task, lk Lookup, _ Mode) []Issue {
	var issues []Issue

	if t.ParentPath != "" {
		if lk.ByPath(t.ParentPath) == nil {
			issues = append(issues, Issue{Type: "missing_parent", Message: "parent path does not exist", Path: "parentPath", Value: t.ParentPath, Rule: r.Name(), Structural: true})
		}
		if expected := types.ParentPath(t.Path); expected != t.ParentPath {
			issues = append(issues, Issue{Type: "mismatch", Message: "parentPath does not match path's own parent segment", Path: "parentPath", Value: t.ParentPath, Rule: r.Name(), Structural: true})
		}
	}

	if depth := types.Depth(t.Path); depth > types.MaxPathDepth {
		issues = append(issues, Issue{Type: "depth", Message: "path depth exceeds maximum", Path: "path", Value: depth, Rule: r.Name(), Structural: true})
	}

	childName := path.Base(t.Path)
	for _, sibling := range lk.Children(t.ParentPath) {
		if sibling == t.Path {
			continue
		}
		if strings.EqualFold(path.Base(sibling), childName) {
			issues = append(issues, Issue{Type: "duplicate_name", Message: "sibling with the same name already exists", Path: "path", Value: childName, Rule: r.Name(), Structural: true})
			break
		}
	}

	return issues
}
