package main

import (
	"context"
	"testing"

	"github.com/taskcore/taskcore/internal/config"
)

func TestBuildWiresFullDependencyGraph(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Logging.Console = false
	cfg.Tracer.CleanupInterval = 0 // New fills in the default

	core, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer core.Close(context.Background())

	if core.Services == nil {
		t.Fatal("expected Services to be constructed")
	}
	if core.Store == nil || core.Index == nil || core.Cache == nil || core.Tracer == nil || core.Backup == nil {
		t.Fatal("expected every component to be non-nil")
	}
}
