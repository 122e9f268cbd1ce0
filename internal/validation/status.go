package validation

import (
	"context"

	"github.com/taskcore/taskcore/internal/types"
)

// allowedTransitions enumerates the status transition table from spec
// §3.2, filled out per Open Question decision 6 in DESIGN.md: BACKLOG
// may only advance to PENDING, and any non-terminal status may move
// directly to CANCELLED.
var allowedTransitions = map[types.Status]map[types.Status]bool{
	types.StatusBacklog: {
		types.StatusPending:   true,
		types.StatusCancelled: true,
	},
	types.StatusPending: {
		types.StatusTodo:       true,
		types.StatusInProgress: true,
		types.StatusBlocked:    true,
		types.StatusCancelled:  true,
	},
	types.StatusTodo: {
		types.StatusInProgress: true,
		types.StatusBlocked:    true,
		types.StatusCancelled:  true,
	},
	types.StatusInProgress: {
		types.StatusCompleted: true,
		types.StatusBlocked:   true,
		types.StatusFailed:    true,
		types.StatusCancelled: true,
	},
	types.StatusBlocked: {
		types.StatusInProgress: true,
		types.StatusCancelled:  true,
	},
	types.StatusFailed: {
		types.StatusPending: true,
	},
	// COMPLETED and CANCELLED are terminal: reopen to PENDING is the
	// only exit, and only for COMPLETED (Open Question decision 1).
	types.StatusCompleted: {
		types.StatusPending: true,
	},
}

// StatusRule enforces the status transition table and blocks a move to
// COMPLETED while any dependency is not itself COMPLETED (spec §3.2,
// §4.5).
type StatusRule struct{}

func (r *StatusRule) Name() string { return "status" }

func (r *StatusRule) Validate(_ context.Context, t *types.Task, lk Lookup, _ Mode) []Issue {
	var issues []Issue

	prior := lk.ByID(t.ID)
	if prior != nil && prior.Status != t.Status {
		if prior.Status == types.StatusCompleted && t.Status == types.StatusPending {
			if blockedBy := completedDependents(t.Path, lk); len(blockedBy) > 0 {
				issues = append(issues, Issue{Type: "reopen_blocked", Message: "cannot reopen a task a completed dependent relies on", Path: "status", Value: blockedBy, Rule: r.Name(), Structural: true})
			}
		} else if !allowedTransitions[prior.Status][t.Status] {
			issues = append(issues, Issue{Type: "invalid_transition", Message: "status transition is not permitted", Path: "status", Value: string(prior.Status) + "->" + string(t.Status), Rule: r.Name(), Structural: true})
		}
	}

	if t.Status == types.StatusCompleted {
		for _, dep := range t.Dependencies {
			depTask := lk.ByID(dep)
			if depTask != nil && depTask.Status != types.StatusCompleted {
				issues = append(issues, Issue{Type: "incomplete_dependency", Message: "cannot complete a task while a dependency is unfinished", Path: "dependencies", Value: dep, Rule: r.Name(), Structural: true})
			}
		}
	}

	return issues
}

// completedDependents implements Open Question decision 1: reopening a
// COMPLETED task (COMPLETED->PENDING) is blocked only if a dependent
// task that relies on it is itself still COMPLETED. path identifies
// the task being reopened.
func completedDependents(path string, lk Lookup) []string {
	var blocked []string
	for _, depPath := range lk.Dependents(path) {
		dep := lk.ByPath(depPath)
		if dep != nil && dep.Status == types.StatusCompleted {
			blocked = append(blocked, depPath)
		}
	}
	return blocked
}
