package validation

import (
	"context"

	"github.com/taskcore/taskcore/internal/types"
)

// DependencyRule validates that every referenced dependency exists,
// detects cycles via DFS with visiting/visited coloring, and enforces
// the max dependency count (spec §4.5).
type DependencyRule struct{}

func (r *DependencyRule) Name() string { return "dependency" }

func (r *DependencyRule) Validate(_ context.Context, t *types.Task, lk Lookup, _ Mode) []Issue {
	var issues []Issue

	if len(t.Dependencies) > types.MaxDependencies {
		issues = append(issues, Issue{Type: "limit", Message: "too many dependencies", Path: "dependencies", Value: len(t.Dependencies), Rule: r.Name(), Structural: true})
	}

	for _, dep := range t.Dependencies {
		if dep == t.ID {
			issues = append(issues, Issue{Type: "self_dependency", Message: "task cannot depend on itself", Path: "dependencies", Value: dep, Rule: r.Name(), Structural: true})
			continue
		}
		if lk.ByID(dep) == nil {
			issues = append(issues, Issue{Type: "missing_dependency", Message: "referenced dependency does not exist", Path: "dependencies", Value: dep, Rule: r.Name(), Structural: true})
		}
	}

	if cycle, ok := detectCycle(t, lk); ok {
		issues = append(issues, Issue{Type: "cycle", Message: "dependency graph contains a cycle", Path: "dependencies", Value: cycle, Rule: r.Name(), Structural: true})
	}

	return issues
}

const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

// detectCycle runs a DFS with visiting(gray)/visited(black) coloring
// starting from t, treating t's declared Dependencies as edges and
// consulting lk for the rest of the already-known graph.
func detectCycle(t *types.Task, lk Lookup) ([]string, bool) {
	color := map[string]int{}
	var path []string

	var visit func(id string) ([]string, bool)
	visit = func(id string) ([]string, bool) {
		color[id] = colorGray
		path = append(path, id)

		var deps []string
		if id == t.ID {
			deps = t.Dependencies
		} else if task := lk.ByID(id); task != nil {
			deps = task.Dependencies
		}

		for _, dep := range deps {
			switch color[dep] {
			case colorGray:
				return append(append([]string{}, path...), dep), true
			case colorBlack:
				continue
			default:
				if cycle, found := visit(dep); found {
					return cycle, true
				}
			}
		}

		color[id] = colorBlack
		path = path[:len(path)-1]
		return nil, false
	}

	return visit(t.ID)
}
