// Package sqlite implements the durable store (component C5) over
// database/sql and github.com/ncruces/go-sqlite3, a pure-Go SQLite driver
// used by the teacher's own sibling fork (untoldecay-BeadsLog). CRUD and
// migration structure are grounded on the teacher's
// internal/storage/sqlite package; retry/instrumentation style is
// grounded on the teacher's internal/storage/dolt/store.go (backoff +
// OpenTelemetry spans on every exported method).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskcore/taskcore/internal/config"
	"github.com/taskcore/taskcore/internal/corelog"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/store/sqlite/migrations"
)

var tracer = otel.Tracer("github.com/taskcore/taskcore/internal/store/sqlite")

// Store implements store.Store over a single SQLite database file.
type Store struct {
	db     *sql.DB
	path   string
	cfg    config.StorageConfig
	logger *corelog.Logger

	mu             sync.RWMutex
	lastCheckpoint time.Time
	lastVacuum     time.Time

	stopBackground chan struct{}
	bgWG           sync.WaitGroup
}

// Open opens (creating if absent) the SQLite database described by cfg,
// performs the startup backup, pragma setup, and pending migrations, and
// starts the background checkpoint/vacuum timers.
func Open(ctx context.Context, cfg config.StorageConfig, logger *corelog.Logger) (*Store, error) {
	if logger == nil {
		logger = corelog.Nop()
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: mkdir base dir: %w", err)
	}

	dbPath := filepath.Join(cfg.BaseDir, cfg.Name+".db")

	if err := startupBackup(cfg.BaseDir, dbPath, 5); err != nil {
		logger.Warn("startup backup failed, continuing", "error", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", dbPath, cfg.Connection.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single pooled connection avoids SQLITE_BUSY storms under WAL;
	// reads and writes through this Store are serialized on it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: dbPath, cfg: cfg, logger: logger, stopBackground: make(chan struct{})}

	if err := s.applyPragmas(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		logger.Warn("startup checkpoint-to-truncate failed", "error", err)
	}

	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	s.startBackgroundMaintenance()
	return s, nil
}

func (s *Store) applyPragmas() error {
	j := s.cfg.Journal
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", orDefault(j.Mode, "WAL")),
		fmt.Sprintf("PRAGMA synchronous=%s", orDefault(j.Synchronous, "NORMAL")),
		fmt.Sprintf("PRAGMA temp_store=%s", orDefault(j.TempStore, "FILE")),
		fmt.Sprintf("PRAGMA locking_mode=%s", orDefault(j.LockingMode, "NORMAL")),
		fmt.Sprintf("PRAGMA auto_vacuum=%s", orDefault(j.AutoVacuum, "NONE")),
		fmt.Sprintf("PRAGMA page_size=%d", orDefaultInt(s.cfg.Performance.PageSize, 4096)),
		fmt.Sprintf("PRAGMA cache_size=-%d", orDefaultInt(s.cfg.Performance.CacheSizePages, 2000)),
		fmt.Sprintf("PRAGMA mmap_size=%d", orDefaultInt64(s.cfg.Performance.MmapSizeBytes, 64<<20)),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
func orDefaultInt64(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

// startupBackup copies the main db plus WAL/SHM sidecars into a
// timestamped directory under startup-backups/, retaining the last
// `keep` directories (spec §4.3).
func startupBackup(baseDir, dbPath string, keep int) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil // nothing to back up yet
	}

	backupRoot := filepath.Join(baseDir, "startup-backups")
	dest := filepath.Join(backupRoot, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		src := dbPath + suffix
		if _, err := os.Stat(src); err != nil {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dest, filepath.Base(src)), data, 0o644); err != nil {
			return err
		}
	}

	return pruneOldBackups(backupRoot, keep)
}

func pruneOldBackups(backupRoot string, keep int) error {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > keep {
		_ = os.RemoveAll(filepath.Join(backupRoot, names[0]))
		names = names[1:]
	}
	return nil
}

func (s *Store) startBackgroundMaintenance() {
	checkpointEvery := s.cfg.Performance.CheckpointInterval
	if checkpointEvery <= 0 {
		checkpointEvery = 5 * time.Minute
	}
	vacuumEvery := s.cfg.Performance.VacuumInterval
	if vacuumEvery <= 0 {
		vacuumEvery = time.Hour
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		cpTicker := time.NewTicker(checkpointEvery)
		vacTicker := time.NewTicker(vacuumEvery)
		defer cpTicker.Stop()
		defer vacTicker.Stop()
		for {
			select {
			case <-s.stopBackground:
				return
			case <-cpTicker.C:
				if err := s.Checkpoint(context.Background()); err != nil {
					s.logger.Warn("periodic checkpoint failed", "error", err)
				}
			case <-vacTicker.C:
				if err := s.Vacuum(context.Background()); err != nil {
					s.logger.Warn("periodic vacuum failed", "error", err)
				}
			}
		}
	}()
}

// Close stops background maintenance and closes the database.
func (s *Store) Close() error {
	close(s.stopBackground)
	s.bgWG.Wait()
	return s.db.Close()
}

// BeginTx starts a new database transaction with the driver's default
// (deferred) locking. With immediate set it also runs a SELECT 1 probe
// inside it; that probe takes no write lock.
func (s *Store) BeginTx(ctx context.Context, immediate bool) (store.Tx, error) {
	ctx, span := tracer.Start(ctx, "sqlite.BeginTx", trace.WithAttributes(attribute.Bool("immediate", immediate)))
	defer span.End()

	opts := &sql.TxOptions{}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapDBError("begin tx", err)
	}
	if immediate {
		if _, err := tx.ExecContext(ctx, "SELECT 1"); err != nil {
			_ = tx.Rollback()
			return nil, wrapDBError("acquire immediate lock", err)
		}
	}
	return &sqlTx{tx}, nil
}

type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) Commit() error   { return wrapDBError("commit", t.tx.Commit()) }
func (t *sqlTx) Rollback() error { return wrapDBError("rollback", t.tx.Rollback()) }

// execer abstracts *sql.DB/*sql.Tx so read/write helpers work with or
// without an active scope.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execerFor resolves the execer for an already-unwrapped *sqlTx (nil
// meaning "no active scope, use the pooled connection"). Callers must
// unwrap a store.Tx via asTx first: passing a nil *sqlTx through a
// store.Tx parameter directly would produce a non-nil interface wrapping
// a nil pointer, defeating this check.
func (s *Store) execerFor(tx *sqlTx) execer {
	if tx == nil {
		return s.db
	}
	return tx.tx
}
