// Package store declares the durable store contract (component C5) that
// concrete backends (internal/store/sqlite) implement: CRUD and query
// operations over Tasks and Knowledge, plus maintenance operations
// (vacuum, analyze, checkpoint, integrity, repair, stats) per spec §4.3.
package store

import (
	"context"
	"time"

	"github.com/taskcore/taskcore/internal/types"
)

// Filter narrows a ListTasks/ListKnowledge query. Only one narrowing
// field is expected to be set at a time by callers of the query planner
// in indexcoord, but the store itself honors any combination.
type Filter struct {
	Status     types.Status
	Type       types.TaskType
	ParentPath string
	Pattern    string // glob, matched against Path
	ProjectID  string
	Tags       []string
}

// Stats summarizes row counts per entity/status, consumed by
// RepairRelationships callers and the taskctl doctor command.
type Stats struct {
	TaskCount      int64
	KnowledgeCount int64
	ByStatus       map[types.Status]int64
	ByType         map[types.TaskType]int64
	LastCheckpoint time.Time
	LastVacuum     time.Time
}

// Metrics surfaces low-level storage health counters.
type Metrics struct {
	WALSizeBytes   int64
	PageCount      int64
	FreelistCount  int64
	SchemaVersion  int
}

// RepairReport is returned by RepairRelationships.
type RepairReport struct {
	Fixed  int
	Issues []string
}

// Tx is a bound database transaction handle opaque to callers outside the
// store package; it satisfies txn.StoreTx.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the durable store contract.
type Store interface {
	// Connection / lifecycle
	BeginTx(ctx context.Context, immediate bool) (Tx, error)
	Close() error

	// Task CRUD
	CreateTask(ctx context.Context, tx Tx, t *types.Task) error
	UpdateTask(ctx context.Context, tx Tx, t *types.Task) error
	DeleteTask(ctx context.Context, tx Tx, id string) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	GetByPath(ctx context.Context, path string) (*types.Task, error)
	GetByIDList(ctx context.Context, ids []string) ([]*types.Task, error)
	GetByPattern(ctx context.Context, glob string) ([]*types.Task, error)
	GetByStatus(ctx context.Context, status types.Status) ([]*types.Task, error)
	GetChildren(ctx context.Context, parentPath string) ([]*types.Task, error)
	GetDependents(ctx context.Context, path string) ([]*types.Task, error)
	ListTasks(ctx context.Context, f Filter, offset, limit int) ([]*types.Task, int, error)

	// Knowledge CRUD
	CreateKnowledge(ctx context.Context, tx Tx, k *types.Knowledge) error
	UpdateKnowledge(ctx context.Context, tx Tx, k *types.Knowledge) error
	DeleteKnowledge(ctx context.Context, tx Tx, id string) error
	GetKnowledge(ctx context.Context, id string) (*types.Knowledge, error)
	ListKnowledge(ctx context.Context) ([]*types.Knowledge, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Analyze(ctx context.Context) error
	Checkpoint(ctx context.Context) error
	VerifyIntegrity(ctx context.Context) error
	RepairRelationships(ctx context.Context, dryRun bool) (RepairReport, error)
	GetStats(ctx context.Context) (Stats, error)
	GetMetrics(ctx context.Context) (Metrics, error)
}
