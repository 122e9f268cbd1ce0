package validation

import (
	"context"
	"regexp"
	"strings"

	"github.com/taskcore/taskcore/internal/types"
)

var pathSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SchemaRule enforces field lengths, enumerations, and path syntax
// (spec §4.5).
type SchemaRule struct{}

func (r *SchemaRule) Name() string { return "schema" }

func (r *SchemaRule) Validate(_ context.Context, t *types.Task, _ Lookup, _ Mode) []Issue {
	var issues []Issue

	if t.Name == "" {
		issues = append(issues, Issue{Type: "required", Message: "name is required", Path: "name", Rule: r.Name(), Structural: true})
	}
	if len(t.Name) > types.MaxNameLen {
		issues = append(issues, Issue{Type: "length", Message: "name exceeds max length", Path: "name", Value: len(t.Name), Rule: r.Name()})
	}
	if len(t.Description) > types.MaxDescriptionLen {
		issues = append(issues, Issue{Type: "length", Message: "description exceeds max length", Path: "description", Value: len(t.Description), Rule: r.Name()})
	}
	if len(t.Reasoning) > types.MaxReasoningLen {
		issues = append(issues, Issue{Type: "length", Message: "reasoning exceeds max length", Path: "reasoning", Value: len(t.Reasoning), Rule: r.Name()})
	}
	if len(t.Notes) > types.MaxNotes {
		issues = append(issues, Issue{Type: "limit", Message: "too many notes", Path: "notes", Value: len(t.Notes), Rule: r.Name(), Structural: true})
	}
	for i, n := range t.Notes {
		if len(n.Text) > types.MaxNoteLen {
			issues = append(issues, Issue{Type: "length", Message: "note exceeds max length", Path: "notes", Value: i, Rule: r.Name()})
		}
		if !n.Category.Valid() {
			issues = append(issues, Issue{Type: "enum", Message: "invalid note category", Path: "notes", Value: n.Category, Rule: r.Name(), Structural: true})
		}
	}
	if len(t.Tags) > types.MaxTags {
		issues = append(issues, Issue{Type: "limit", Message: "too many tags", Path: "tags", Value: len(t.Tags), Rule: r.Name(), Structural: true})
	}
	if len(t.Dependencies) > types.MaxDependencies {
		issues = append(issues, Issue{Type: "limit", Message: "too many dependencies", Path: "dependencies", Value: len(t.Dependencies), Rule: r.Name(), Structural: true})
	}

	if !t.Type.Valid() {
		issues = append(issues, Issue{Type: "enum", Message: "invalid task type", Path: "type", Value: t.Type, Rule: r.Name(), Structural: true})
	}
	if !t.Status.Valid() {
		issues = append(issues, Issue{Type: "enum", Message: "invalid status", Path: "status", Value: t.Status, Rule: r.Name(), Structural: true})
	}
	if !t.Priority.Valid() {
		issues = append(issues, Issue{Type: "enum", Message: "invalid priority", Path: "priority", Value: t.Priority, Rule: r.Name(), Structural: true})
	}

	if issue, ok := validatePathSyntax(t.Path); !ok {
		issue.Rule = r.Name()
		issues = append(issues, issue)
	}

	return issues
}

func validatePathSyntax(path string) (Issue, bool) {
	if path == "" {
		return Issue{Type: "required", Message: "path is required", Path: "path", Structural: true}, false
	}
	segments := strings.Split(path, "/")
	if len(segments) > types.MaxPathDepth {
		return Issue{Type: "limit", Message: "path exceeds max depth", Path: "path", Value: len(segments), Structural: true}, false
	}
	for _, seg := range segments {
		if seg == "" || !pathSegmentPattern.MatchString(seg) {
			return Issue{Type: "syntax", Message: "path segment contains invalid characters", Path: "path", Value: seg, Structural: true}, false
		}
	}
	return Issue{}, true
}
