package main

import (
	"context"
	"os"

	"github.com/taskcore/taskcore/internal/config"
	"github.com/taskcore/taskcore/internal/corelog"
	"github.com/taskcore/taskcore/internal/store/sqlite"
)

// openStore loads the layered config, applies a --base-dir override if
// given, and opens the store. Open also applies any pending schema
// migrations, which is what backs the standalone `migrate` subcommand.
func openStore(ctx context.Context) (*sqlite.Store, error) {
	cfg, err := config.Load(os.Getenv("TASKCORE_CONFIG"))
	if err != nil {
		return nil, err
	}
	if baseDir != "" {
		cfg.Storage.BaseDir = baseDir
	}
	return sqlite.Open(ctx, cfg.Storage, corelog.Nop())
}
