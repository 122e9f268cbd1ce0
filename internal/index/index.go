// Package index implements the three in-memory secondary indexes from
// component C6 (spec §4.4): Primary (by id/path), Status (status → set of
// ids), and Hierarchy (parentPath → ordered children, type → set of ids).
// Each is protected by its own sync.RWMutex, grounded on the teacher's
// internal/rpc/label_cache.go sharded-lock style rather than a single
// global lock over all three.
package index

import (
	"context"

	"github.com/taskcore/taskcore/internal/types"
)

// Result reports the outcome of a single index mutation.
type Result struct {
	OK    bool
	Error error
}

// QueryResult is the narrowed set of task ids an index query matched.
type QueryResult struct {
	IDs []string
}

// Stats surfaces the current size of an index for diagnostics.
type Stats struct {
	EntryCount int
}

// Query narrows an index lookup. Only one field is expected to be set at
// a time; the indexcoord query planner decides which index to consult
// based on which field is populated.
type Query struct {
	Status     types.Status
	Type       types.TaskType
	ParentPath string
}

// Index is the shared contract implemented by Primary, Status, and
// Hierarchy (spec §4.4).
type Index interface {
	Upsert(ctx context.Context, t *types.Task) Result
	Delete(ctx context.Context, id string) Result
	Batch(ctx context.Context, ops []Op) []Result
	Query(ctx context.Context, q Query) QueryResult
	Clear(ctx context.Context)
	Stats(ctx context.Context) Stats
}

// OpKind enumerates the kinds of batched index operations.
type OpKind string

const (
	OpUpsert OpKind = "upsert"
	OpDelete OpKind = "delete"
)

// Op is one entry of a Batch call.
type Op struct {
	Kind OpKind
	Task *types.Task // set for OpUpsert
	ID   string       // set for OpDelete
}
