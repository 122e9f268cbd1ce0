package backup_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/taskcore/taskcore/internal/backup"
	"github.com/taskcore/taskcore/internal/config"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/store/sqlite"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
)

func newTestBackup(t *testing.T) (*backup.Backup, *sqlite.Store) {
	t.Helper()
	cfg := config.Default().Storage
	cfg.BaseDir = t.TempDir()

	st, err := sqlite.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New(nil)
	return backup.New(st, txn.New(bus), indexcoord.New(nil), types.SystemClock{}, "test-conn"), st
}

func sampleTask(id, path string) *types.Task {
	return &types.Task{
		ID:       id,
		Path:     path,
		Name:     "sample",
		Type:     types.TypeTask,
		Status:   types.StatusBacklog,
		Priority: types.PriorityMedium,
		Created:  1,
		Updated:  1,
		Version:  1,
	}
}

func TestExportThenImportRoundTrips(t *testing.T) {
	b, st := newTestBackup(t)
	ctx := context.Background()

	tx, err := st.BeginTx(ctx, true)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := st.CreateTask(ctx, tx, sampleTask("t1", "proj/a")); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := st.CreateTask(ctx, tx, sampleTask("t2", "proj/b")); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var buf bytes.Buffer
	if err := b.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Export wrote nothing")
	}

	b2, st2 := newTestBackup(t)
	if err := b2.Import(ctx, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Import: %v", err)
	}

	got, _, err := st2.ListTasks(ctx, store.Filter{}, 0, 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks after import, got %d", len(got))
	}
}

func TestImportRejectsNewerSchemaVersion(t *testing.T) {
	b, _ := newTestBackup(t)
	ctx := context.Background()

	future := "schemaVersion: 999\ntakenAt: 1\ntasks: []\nknowledge: []\n"
	err := b.Import(ctx, bytes.NewBufferString(future))
	if err == nil {
		t.Fatal("expected error importing a newer schema version")
	}
}
