// Package validation implements the C8 validation pipeline: an ordered,
// named sequence of rules run over a Task in either STRICT or LENIENT
// mode (spec §4.5). The pipeline itself is a static table built at
// startup — mutation is capability-gated rather than reflection-driven,
// per spec §9's design note on avoiding "monkey-patchable" rule sets.
package validation

import (
	"context"

	"github.com/taskcore/taskcore/internal/types"
)

// Mode controls how the pipeline treats a rule failure.
type Mode string

const (
	Strict  Mode = "STRICT"
	Lenient Mode = "LENIENT"
)

// Issue is the structured result of a single rule failure (spec §4.5:
// "{type, message, path, value, metadata.rule}").
type Issue struct {
	Type    string
	Message string
	Path    string
	Value   any
	Rule    string
	// Structural marks an issue as one LENIENT mode must still fail on
	// (a cycle, a missing referenced entity) rather than merely warn
	// about (a soft length overage).
	Structural bool
}

// Lookup is the read access the rules need into already-known state
// (siblings, existing tasks, dependency graph) without depending on the
// full service layer.
type Lookup interface {
	ByID(id string) *types.Task
	ByPath(path string) *types.Task
	Children(parentPath string) []string
	// Dependents returns the paths of tasks that declare a dependency on
	// the task at path, backed by store.GetDependents.
	Dependents(path string) []string
}

// Rule is one independently addressable, named validation step.
type Rule interface {
	Name() string
	Validate(ctx context.Context, t *types.Task, lk Lookup, mode Mode) []Issue
}

// Capability gates runtime mutation of the pipeline's rule table.
type Capability struct {
	AllowRuleMutation bool
}

// Pipeline runs its rules in registration order, aggregating issues
// grouped by rule.
type Pipeline struct {
	rules []Rule
	cap   Capability
}

// New builds a Pipeline from the default rule set in spec §4.5's order:
// Schema, Hierarchy, Dependency, Status, Relationship.
func New(cap Capability) *Pipeline {
	return &Pipeline{
		rules: []Rule{
			&SchemaRule{},
			&HierarchyRule{},
			&DependencyRule{},
			&StatusRule{},
			&RelationshipRule{},
		},
		cap: cap,
	}
}

// Rules returns the current ordered rule table (read-only view).
func (p *Pipeline) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// AddRule appends a rule to the table if mutation is allowed.
func (p *Pipeline) AddRule(r Rule) error {
	if !p.cap.AllowRuleMutation {
		return errRuleMutationDisabled
	}
	p.rules = append(p.rules, r)
	return nil
}

// RemoveRule removes the named rule from the table if mutation is
// allowed.
func (p *Pipeline) RemoveRule(name string) error {
	if !p.cap.AllowRuleMutation {
		return errRuleMutationDisabled
	}
	for i, r := range p.rules {
		if r.Name() == name {
			p.rules = append(p.rules[:i], p.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

// Result is the pipeline's aggregate verdict.
type Result struct {
	OK     bool
	ByRule map[string][]Issue
}

// Run executes every rule in order, aggregating issues by rule name. In
// STRICT mode any issue fails the pipeline; in LENIENT mode only
// Structural issues fail it, the rest are accumulated as warnings.
func (p *Pipeline) Run(ctx context.Context, t *types.Task, lk Lookup, mode Mode) Result {
	result := Result{OK: true, ByRule: make(map[string][]Issue)}
	for _, rule := range p.rules {
		issues := rule.Validate(ctx, t, lk, mode)
		if len(issues) == 0 {
			continue
		}
		result.ByRule[rule.Name()] = issues
		for _, issue := range issues {
			if mode == Strict || issue.Structural {
				result.OK = false
			}
		}
	}
	return result
}
