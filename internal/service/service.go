// Package service implements the C11 Task & Knowledge services: the
// high-level operations that compose C4 (txn), C5 (store), C7
// (indexcoord), C8 (validation), C9 (cache), and C10 (bulk) behind the
// orchestration contract from spec §4.8: validate -> open scope (C4) ->
// write via C5 -> coordinate indexes (C7) -> invalidate cache (C9) ->
// emit event (C3) -> commit.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskcore/taskcore/internal/bulk"
	"github.com/taskcore/taskcore/internal/cache"
	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/idgen"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
	"github.com/taskcore/taskcore/internal/validation"
)

// Deps bundles the components a service composes. All fields are
// required; Services is typically constructed once at process startup.
type Deps struct {
	Store      store.Store
	Txn        *txn.Coordinator
	Index      *indexcoord.Coordinator
	Cache      *cache.Cache
	Bus        *eventbus.Bus
	Validation *validation.Pipeline
	Clock      types.Clock
	ConnID     string // the logical connection/worker id bound to txn scopes
}

// Services bundles both entity services sharing one set of Deps.
type Services struct {
	Task      *TaskService
	Knowledge *KnowledgeService
}

// New constructs both services over the given Deps.
func New(d Deps) *Services {
	return &Services{
		Task:      &TaskService{d: d},
		Knowledge: &KnowledgeService{d: d},
	}
}

// indexLookup adapts the index coordinator and store to validation.Lookup.
type indexLookup struct {
	ctx   context.Context
	idx   *indexcoord.Coordinator
	store store.Store
}

func (l indexLookup) ByID(id string) *types.Task      { return l.idx.ByID(id) }
func (l indexLookup) ByPath(path string) *types.Task  { return l.idx.ByPath(path) }
func (l indexLookup) Children(parent string) []string { return l.idx.Children(parent) }
func (l indexLookup) Dependents(path string) []string { return dependentsOf(l.ctx, l.store, path) }

// closureLookup adapts the store + index coordinator to
// bulk.ClosureLookup for status-propagation cascades.
type closureLookup struct {
	ctx context.Context
	s   store.Store
	idx *indexcoord.Coordinator
}

func (l closureLookup) Children(parent string) []string { return l.idx.Children(parent) }

// Dependents returns the paths of tasks depending on the task at path,
// keeping the closure's node identifiers uniformly path-based (the
// same space Children already operates in).
func (l closureLookup) Dependents(path string) []string { return dependentsOf(l.ctx, l.s, path) }

// dependentsOf resolves the paths of tasks that declare a dependency on
// the task at path, shared by indexLookup and closureLookup.
func dependentsOf(ctx context.Context, s store.Store, path string) []string {
	deps, err := s.GetDependents(ctx, path)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.Path)
	}
	return out
}

// normalizePath lowercases a path for case-insensitive comparisons
// while preserving the caller's original casing for storage (spec
// §4.8: "case-preserving storage, case-insensitive matching").
func normalizePath(path string) string {
	return strings.ToLower(strings.TrimSpace(path))
}

// findDuplicateName returns the path of a sibling whose name collides
// with candidatePath's own name, or "" if none. Used by create/move to
// surface DUPLICATE_NAME before a write is attempted.
func findDuplicateName(idx *indexcoord.Coordinator, parentPath, candidatePath, excludeID string) string {
	candidateName := normalizePath(lastSegment(candidatePath))
	for _, sibling := range idx.Children(parentPath) {
		if normalizePath(lastSegment(sibling)) == candidateName {
			if t := idx.ByPath(sibling); t != nil && t.ID == excludeID {
				continue
			}
			return sibling
		}
	}
	return ""
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func duplicateNameError(path string) error {
	return coreerr.New(coreerr.KindDuplicate, fmt.Sprintf("a task named %q already exists under this parent", lastSegment(path))).WithPath(path)
}

// withTx runs work inside one outermost C4 transaction scope, binding
// the durable store's real *sql.Tx handle to the scope so that Execute's
// own commit/rollback finalizes storage. isolation selects IMMEDIATE for
// writes and DEFERRED for reads that still want scope/backup tracking.
func withTx(ctx context.Context, d Deps, isolation txn.Isolation, work func(ctx context.Context, tx store.Tx) error) error {
	return d.Txn.Execute(ctx, d.ConnID, txn.ExecOptions{Isolation: isolation}, func(ctx context.Context, txID string) error {
		tx, err := d.Store.BeginTx(ctx, isolation != txn.Deferred)
		if err != nil {
			return err
		}
		if err := d.Txn.BindStore(txID, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return work(ctx, tx)
	})
}

// cacheFingerprint wraps cache.Fingerprint, falling back to a plain
// "op:arg" key if the argument can't be marshaled (it always can for
// the string arguments this package passes, but Fingerprint's
// signature returns an error for the general case).
func cacheFingerprint(op string, arg any) (string, error) {
	key, err := cache.Fingerprint(op, arg)
	if err != nil {
		return op + ":" + fmt.Sprint(arg), nil
	}
	return key, nil
}

func mintTaskID() string { return idgen.New(idgen.PrefixTask) }

func mintKnowledgeID() string { return idgen.New(idgen.PrefixKnowledge) }

func mintCitationID() string { return idgen.New(idgen.PrefixCitation) }

// bulkApplier adapts TaskService.applyBulkOp to bulk.Applier.
type bulkApplier struct {
	apply func(ctx context.Context, op bulk.Op) error
}

func (a bulkApplier) Apply(ctx context.Context, op bulk.Op) error { return a.apply(ctx, op) }
