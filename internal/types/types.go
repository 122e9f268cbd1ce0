// Package types defines the entity model shared across the task and
// knowledge coordination core: tasks, knowledge items, their satellite
// records, and the transaction scope that wraps mutations to them.
package types

import (
	"strings"
	"time"
)

// TaskType enumerates the kinds of work a Task can represent.
type TaskType string

const (
	TypeTask        TaskType = "TASK"
	TypeMilestone   TaskType = "MILESTONE"
	TypeGroup       TaskType = "GROUP"
	TypeResearch    TaskType = "RESEARCH"
	TypeGeneration  TaskType = "GENERATION"
	TypeAnalysis    TaskType = "ANALYSIS"
	TypeIntegration TaskType = "INTEGRATION"
)

// ValidTaskTypes lists every recognized TaskType.
var ValidTaskTypes = []TaskType{
	TypeTask, TypeMilestone, TypeGroup, TypeResearch,
	TypeGeneration, TypeAnalysis, TypeIntegration,
}

func (t TaskType) Valid() bool {
	for _, v := range ValidTaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Status enumerates the lifecycle states of a Task.
type Status string

const (
	StatusBacklog    Status = "BACKLOG"
	StatusPending    Status = "PENDING"
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusBlocked    Status = "BLOCKED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
)

// ValidStatuses lists every recognized Status.
var ValidStatuses = []Status{
	StatusBacklog, StatusPending, StatusTodo, StatusInProgress,
	StatusCompleted, StatusBlocked, StatusCancelled, StatusFailed,
}

func (s Status) Valid() bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether a status does not transition further except
// via an explicit reopen to PENDING.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Priority enumerates Task priority bands.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// NoteCategory enumerates the categories a Note may be filed under.
type NoteCategory string

const (
	NotePlanning       NoteCategory = "planning"
	NoteProgress       NoteCategory = "progress"
	NoteCompletion     NoteCategory = "completion"
	NoteTroubleshoot   NoteCategory = "troubleshooting"
)

func (c NoteCategory) Valid() bool {
	switch c {
	case NotePlanning, NoteProgress, NoteCompletion, NoteTroubleshoot:
		return true
	}
	return false
}

// Note is a timestamped, categorized annotation on a Task.
type Note struct {
	Text     string       `json:"text" yaml:"text"`
	Category NoteCategory `json:"category" yaml:"category"`
	Created  int64        `json:"created" yaml:"created"`
}

// Limits mirror the structural bounds from spec §3.1.
const (
	MaxNameLen        = 200
	MaxDescriptionLen = 2000
	MaxReasoningLen   = 2000
	MaxNoteLen        = 1000
	MaxNotes          = 25
	MaxTags           = 20
	MaxDependencies   = 50
	MaxPathDepth      = 5
)

// MetadataValue is a bounded, explicitly-kinded value for the Task/Knowledge
// metadata bag, replacing free-form dynamic typing with a closed sum type.
type MetadataValue struct {
	Kind   MetadataKind `json:"kind" yaml:"kind"`
	String string       `json:"string,omitempty" yaml:"string,omitempty"`
	Number float64      `json:"number,omitempty" yaml:"number,omitempty"`
	Bool   bool         `json:"bool,omitempty" yaml:"bool,omitempty"`
	Array  []string     `json:"array,omitempty" yaml:"array,omitempty"`
	Object map[string]string `json:"object,omitempty" yaml:"object,omitempty"`
}

// MetadataKind tags which field of MetadataValue is populated.
type MetadataKind string

const (
	MetadataString MetadataKind = "string"
	MetadataNumber MetadataKind = "number"
	MetadataBool   MetadataKind = "bool"
	MetadataArray  MetadataKind = "array"
	MetadataObject MetadataKind = "object"
)

// Task is the unit of work managed by the core.
type Task struct {
	ID          string `json:"id" yaml:"id"`
	Path        string `json:"path" yaml:"path"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Type     TaskType `json:"type" yaml:"type"`
	Status   Status   `json:"status" yaml:"status"`
	Priority Priority `json:"priority" yaml:"priority"`

	ParentPath string `json:"parentPath,omitempty" yaml:"parentPath,omitempty"`
	ProjectID  string `json:"projectId,omitempty" yaml:"projectId,omitempty"`

	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Subtasks is a derived view (spec §3.1): the paths of tasks whose
	// ParentPath equals this task's Path. It is not an independently
	// stored column; callers should not rely on a caller-supplied value
	// surviving a write.
	Subtasks []string `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`

	Notes     []Note   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Reasoning string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	URLs      []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	Tags      []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	AssignedTo             string `json:"assignedTo,omitempty" yaml:"assignedTo,omitempty"`
	CompletionRequirements string `json:"completionRequirements,omitempty" yaml:"completionRequirements,omitempty"`
	OutputFormat           string `json:"outputFormat,omitempty" yaml:"outputFormat,omitempty"`

	Metadata map[string]MetadataValue `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Created int64 `json:"created" yaml:"created"`
	Updated int64 `json:"updated" yaml:"updated"`
	Version int64 `json:"version" yaml:"version"`
}

// Depth returns the hierarchical depth of a path: "a" is depth 1,
// "a/b" is depth 2, and so on. An empty path has depth 0.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return len(strings.Split(path, "/"))
}

// ParentPath returns the parent of a slash-separated path, or "" if the
// path has no parent (depth <= 1).
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Citation links a Knowledge item to an external or internal source.
type Citation struct {
	ID        string `json:"id" yaml:"id"`
	Source    string `json:"source" yaml:"source"`
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Created   int64  `json:"created" yaml:"created"`
}

// Knowledge is an ingested fact or research artifact.
type Knowledge struct {
	ID        string     `json:"id" yaml:"id"`
	ProjectID string     `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	Text      string     `json:"text" yaml:"text"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Domain    string     `json:"domain,omitempty" yaml:"domain,omitempty"`
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`
	Created   int64      `json:"created" yaml:"created"`
	Updated   int64      `json:"updated" yaml:"updated"`
}

// Project groups tasks and knowledge under a common umbrella.
type Project struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Created int64  `json:"created" yaml:"created"`
}

// DeleteStrategy controls how deletion handles a Task's descendants.
type DeleteStrategy string

const (
	DeleteCascade DeleteStrategy = "cascade"
	DeleteBlock   DeleteStrategy = "block"
)

// Page describes pagination parameters and results for list queries.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps a Page to the defaults/ceiling from spec §4.8.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// PageResult wraps a page of results with pagination metadata.
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int   `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPageResult computes Page/TotalPages from an offset/limit/total triple.
func NewPageResult[T any](items []T, offset, limit, total int) PageResult[T] {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	page := offset/limit + 1
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	return PageResult[T]{Items: items, Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}

// Clock returns monotonic-within-process milliseconds since epoch.
type Clock interface {
	Now() int64
}

// SystemClock is the default wall-clock backed Clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().UnixMilli() }
