// Command taskd builds and holds open the core's dependency graph: the
// transactional store, its secondary indexes, the validation pipeline,
// the cache/pressure coordinator, and the Task/Knowledge services, in
// the leaves-first construction order from spec §2. It does not itself
// speak any client wire protocol; an RPC/tool-dispatch layer (an
// explicit external collaborator per spec §1) is expected to embed or
// front this process's Services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskcore/taskcore/internal/backup"
	"github.com/taskcore/taskcore/internal/cache"
	"github.com/taskcore/taskcore/internal/config"
	"github.com/taskcore/taskcore/internal/corelog"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/idgen"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/service"
	"github.com/taskcore/taskcore/internal/store/sqlite"
	"github.com/taskcore/taskcore/internal/tracer"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/validation"
)

// Core bundles every component built at startup, handed to whatever
// front-end embeds this process.
type Core struct {
	Config   config.Config
	Logger   *corelog.Logger
	Bus      *eventbus.Bus
	Store    *sqlite.Store
	Index    *indexcoord.Coordinator
	Cache    *cache.Cache
	Tracer   *tracer.Tracer
	Backup   *backup.Backup
	Services *service.Services
}

// Build constructs the full dependency graph in the leaves-first order
// from spec §2: C1-C3 first, then C4/C5, C6/C7, C8, C9, and finally the
// C11 services that compose all of it.
func Build(ctx context.Context, cfg config.Config) (*Core, error) {
	logger := corelog.New(corelog.Config(cfg.Logging))
	bus := eventbus.New(logger)
	clock := idgen.NewClock()

	st, err := sqlite.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	txnCoord := txn.New(bus)

	idx := indexcoord.New(logger)
	pipeline := validation.New(validation.Capability{AllowRuleMutation: false})
	c := cache.New(cache.Config{
		MaxMemoryBytes:    cfg.Cache.MaxMemoryBytes,
		CheckInterval:     cfg.Cache.CheckInterval,
		PressureThreshold: cfg.Cache.PressureThreshold,
		DebugMode:         cfg.Cache.DebugMode,
	}, logger, bus)

	tr, err := tracer.New(tracer.Config{
		MaxTraces:         cfg.Tracer.MaxTraces,
		MaxEventsPerTrace: cfg.Tracer.MaxEventsPerTrace,
		TraceRetention:    cfg.Tracer.TraceRetention,
		CleanupInterval:   cfg.Tracer.CleanupInterval,
	}, logger, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("build tracer: %w", err)
	}

	svcs := service.New(service.Deps{
		Store:      st,
		Txn:        txnCoord,
		Index:      idx,
		Cache:      c,
		Bus:        bus,
		Validation: pipeline,
		Clock:      taskClock{clock},
		ConnID:     "taskd",
	})

	bk := backup.New(st, txnCoord, idx, taskClock{clock}, "taskd-backup")

	return &Core{
		Config:   cfg,
		Logger:   logger,
		Bus:      bus,
		Store:    st,
		Index:    idx,
		Cache:    c,
		Tracer:   tr,
		Backup:   bk,
		Services: svcs,
	}, nil
}

// taskClock adapts idgen.Clock's millisecond-since-epoch Now() to
// types.Clock, the only seam the core's services depend on so it's
// trivial to substitute a deterministic clock in tests.
type taskClock struct{ c *idgen.Clock }

func (t taskClock) Now() int64 { return t.c.Now() }

// Close shuts down every component that owns a background goroutine or
// file handle, in reverse dependency order.
func (c *Core) Close(ctx context.Context) {
	_ = c.Tracer.Close(ctx)
	c.Cache.Close()
	_ = c.Store.Close()
}

func main() {
	cfg, err := config.Load(os.Getenv("TASKCORE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "taskd: load config:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core, err := Build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "taskd: build core:", err)
		os.Exit(1)
	}
	defer core.Close(context.Background())

	core.Logger.Info("taskd ready", "baseDir", cfg.Storage.BaseDir)
	<-ctx.Done()
	core.Logger.Info("taskd shutting down")
}
