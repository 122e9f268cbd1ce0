// Package backup implements component C12: a YAML snapshot of every Task
// and Knowledge item, taken and restored inside a C4 scope. Per spec §1 the scheduler that decides *when* to call Export
// lives outside the core; this package only exposes the hook.
package backup

import (
	"context"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
)

// SchemaVersion is bumped whenever Snapshot's shape changes in a way that
// requires Import to special-case older files.
const SchemaVersion = 1

// Snapshot is the on-disk/on-wire shape of a backup file.
type Snapshot struct {
	SchemaVersion int               `yaml:"schemaVersion"`
	TakenAt       int64             `yaml:"takenAt"`
	Tasks         []*types.Task     `yaml:"tasks"`
	Knowledge     []*types.Knowledge `yaml:"knowledge"`
}

// exportPageSize bounds a single ListTasks call while paging through the
// full table; it has nothing to do with the API's client-facing page
// limits in spec §4.8.
const exportPageSize = 500

// Backup composes the durable store and transaction coordinator to
// produce and restore snapshots, each under one C4 scope. Import binds a
// store transaction to its scope the way the service package's withTx
// does; Export does not (see Export).
type Backup struct {
	Store  store.Store
	Txn    *txn.Coordinator
	Index  *indexcoord.Coordinator
	Clock  types.Clock
	ConnID string
}

// New constructs a Backup over the given components.
func New(st store.Store, tx *txn.Coordinator, idx *indexcoord.Coordinator, clock types.Clock, connID string) *Backup {
	return &Backup{Store: st, Txn: tx, Index: idx, Clock: clock, ConnID: connID}
}

// Export writes a snapshot of all tasks and knowledge to w as YAML. It
// reads inside a DEFERRED coordinator scope that binds no store
// transaction: each ListTasks page and the ListKnowledge call go through
// the connection pool, so writes committed between those reads show up
// in the snapshot, which is therefore not a single point-in-time view.
func (b *Backup) Export(ctx context.Context, w io.Writer) error {
	snap := Snapshot{SchemaVersion: SchemaVersion, TakenAt: b.Clock.Now()}

	err := b.Txn.Execute(ctx, b.ConnID, txn.ExecOptions{Isolation: txn.Deferred}, func(ctx context.Context, _ string) error {
		offset := 0
		for {
			page, total, err := b.Store.ListTasks(ctx, store.Filter{}, offset, exportPageSize)
			if err != nil {
				return coreerr.Wrap(coreerr.KindStorageIO, err, "export: list tasks")
			}
			snap.Tasks = append(snap.Tasks, page...)
			offset += len(page)
			if len(page) == 0 || offset >= total {
				break
			}
		}

		knowledge, err := b.Store.ListKnowledge(ctx)
		if err != nil {
			return coreerr.Wrap(coreerr.KindStorageIO, err, "export: list knowledge")
		}
		snap.Knowledge = knowledge
		return nil
	})
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(snap); err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "export: encode snapshot")
	}
	return nil
}

// Import writes the tasks and knowledge decoded from r into the store
// via CreateTask/CreateKnowledge inside one IMMEDIATE scope, so a write
// failure partway through leaves the prior state untouched. Existing
// rows are not removed first.
func (b *Backup) Import(ctx context.Context, r io.Reader) error {
	var snap Snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "import: decode snapshot")
	}
	if snap.SchemaVersion > SchemaVersion {
		return coreerr.Newf(coreerr.KindValidation, "backup schema version %d is newer than this build supports (%d)", snap.SchemaVersion, SchemaVersion)
	}

	return b.Txn.Execute(ctx, b.ConnID, txn.ExecOptions{Isolation: txn.Immediate}, func(ctx context.Context, txID string) error {
		tx, err := b.Store.BeginTx(ctx, true)
		if err != nil {
			return err
		}
		if err := b.Txn.BindStore(txID, tx); err != nil {
			_ = tx.Rollback()
			return err
		}

		for _, t := range snap.Tasks {
			if err := b.Store.CreateTask(ctx, tx, t); err != nil {
				return coreerr.Wrap(coreerr.KindStorageIO, err, "import: create task "+t.ID)
			}
			if b.Index != nil {
				if err := b.Index.Upsert(ctx, t, indexcoord.Atomic); err != nil {
					return err
				}
			}
		}
		for _, k := range snap.Knowledge {
			if err := b.Store.CreateKnowledge(ctx, tx, k); err != nil {
				return coreerr.Wrap(coreerr.KindStorageIO, err, "import: create knowledge "+k.ID)
			}
		}
		return nil
	})
}

// RetentionCutoff reports the oldest timestamp a retained backup file may
// carry given maxBackups rotated once per schedule tick; it's a pure
// helper that touches no filesystem.
func RetentionCutoff(now time.Time, interval time.Duration, maxBackups int) time.Time {
	if maxBackups <= 0 {
		return now
	}
	return now.Add(-interval * time.Duration(maxBackups))
}
