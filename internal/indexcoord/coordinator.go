// Package indexcoord implements the C7 index coordinator: it wraps the
// three C6 indexes (internal/index) behind atomic/non-atomic write modes,
// a bounded batch size, retry with the same backoff shape as the
// transaction coordinator (C4), and the status/type/else query planner
// from spec §4.4.
package indexcoord

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/corelog"
	"github.com/taskcore/taskcore/internal/index"
	"github.com/taskcore/taskcore/internal/types"
)

// MaxBatchSize is the spec §4.4 default ceiling on indexcoord.Batch.
const MaxBatchSize = 1000

// DefaultRetryAttempts is the spec §4.4 default retry ceiling.
const DefaultRetryAttempts = 3

// Mode selects atomic (all-or-nothing, compensated) or non-atomic
// (primary-only, divergence logged) index writes.
type Mode string

const (
	Atomic    Mode = "atomic"
	NonAtomic Mode = "non_atomic"
)

// Divergence records a non-atomic write where a secondary index failed
// while the primary succeeded, for later reconciliation by a repair pass.
type Divergence struct {
	TaskID string
	Index  string
	Err    error
}

// Coordinator wraps Primary/Status/Hierarchy behind the atomic/non-atomic
// write contract and the query planner.
type Coordinator struct {
	primary   *index.Primary
	status    *index.Status
	hierarchy *index.Hierarchy
	logger    *corelog.Logger

	retryAttempts int
}

// New constructs a Coordinator over fresh Primary/Status/Hierarchy
// indexes.
func New(logger *corelog.Logger) *Coordinator {
	if logger == nil {
		logger = corelog.Nop()
	}
	return &Coordinator{
		primary:       index.NewPrimary(),
		status:        index.NewStatus(),
		hierarchy:     index.NewHierarchy(),
		logger:        logger,
		retryAttempts: DefaultRetryAttempts,
	}
}

func (c *Coordinator) retry(op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(bo.NextBackOff())
		}
		if err := op(); err != nil {
			lastErr = err
			if coreerr.IsRetryable(err) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("indexcoord: exhausted %d attempts: %w", c.retryAttempts, lastErr)
}

// Upsert writes a task into all three indexes under the given mode.
func (c *Coordinator) Upsert(ctx context.Context, t *types.Task, mode Mode) error {
	if mode == Atomic {
		return c.upsertAtomic(ctx, t)
	}
	return c.upsertNonAtomic(ctx, t)
}

func (c *Coordinator) upsertAtomic(ctx context.Context, t *types.Task) error {
	var applied []index.Index

	for _, idx := range []index.Index{c.primary, c.status, c.hierarchy} {
		err := c.retry(func() error {
			res := idx.Upsert(ctx, t)
			if !res.OK {
				return res.Error
			}
			return nil
		})
		if err != nil {
			for _, done := range applied {
				_ = done.Delete(ctx, t.ID) // compensate partial writes
			}
			return coreerr.Wrap(coreerr.KindInternal, err, "atomic index upsert failed")
		}
		applied = append(applied, idx)
	}
	return nil
}

func (c *Coordinator) upsertNonAtomic(ctx context.Context, t *types.Task) error {
	err := c.retry(func() error {
		res := c.primary.Upsert(ctx, t)
		if !res.OK {
			return res.Error
		}
		return nil
	})
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "primary index upsert failed")
	}

	if res := c.status.Upsert(ctx, t); !res.OK {
		c.logDivergence(Divergence{TaskID: t.ID, Index: "status", Err: res.Error})
	}
	if res := c.hierarchy.Upsert(ctx, t); !res.OK {
		c.logDivergence(Divergence{TaskID: t.ID, Index: "hierarchy", Err: res.Error})
	}
	return nil
}

// Delete removes a task from all three indexes under the given mode.
func (c *Coordinator) Delete(ctx context.Context, id string, mode Mode) error {
	if mode == Atomic {
		for _, idx := range []index.Index{c.primary, c.status, c.hierarchy} {
			if err := c.retry(func() error {
				res := idx.Delete(ctx, id)
				if !res.OK {
					return res.Error
				}
				return nil
			}); err != nil {
				return coreerr.Wrap(coreerr.KindInternal, err, "atomic index delete failed")
			}
		}
		return nil
	}

	if err := c.retry(func() error {
		res := c.primary.Delete(ctx, id)
		if !res.OK {
			return res.Error
		}
		return nil
	}); err != nil {
		return coreerr.Wrap(coreerr.KindInternal, err, "primary index delete failed")
	}
	if res := c.status.Delete(ctx, id); !res.OK {
		c.logDivergence(Divergence{TaskID: id, Index: "status", Err: res.Error})
	}
	if res := c.hierarchy.Delete(ctx, id); !res.OK {
		c.logDivergence(Divergence{TaskID: id, Index: "hierarchy", Err: res.Error})
	}
	return nil
}

// Batch applies a slice of upsert/delete operations, bounded by
// MaxBatchSize.
func (c *Coordinator) Batch(ctx context.Context, ops []index.Op, mode Mode) error {
	if len(ops) > MaxBatchSize {
		return coreerr.Newf(coreerr.KindLimitExceeded, "batch size %d exceeds limit %d", len(ops), MaxBatchSize)
	}
	for _, op := range ops {
		var err error
		switch op.Kind {
		case index.OpUpsert:
			err = c.Upsert(ctx, op.Task, mode)
		case index.OpDelete:
			err = c.Delete(ctx, op.ID, mode)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) logDivergence(d Divergence) {
	c.logger.Warn("index divergence", "task_id", d.TaskID, "index", d.Index, "error", d.Err)
}

// Query runs the spec §4.4 planner: status filters hit the Status index,
// type filters hit the Hierarchy index, everything else falls back to
// Primary (the full known id set, narrowed further by the store).
func (c *Coordinator) Query(ctx context.Context, q index.Query) index.QueryResult {
	switch {
	case q.Status != "":
		return c.status.Query(ctx, q)
	case q.Type != "":
		return c.hierarchy.Query(ctx, q)
	default:
		return c.primary.Query(ctx, q)
	}
}

// Children returns the ordered direct children of a parent path.
func (c *Coordinator) Children(parentPath string) []string {
	return c.hierarchy.Children(parentPath)
}

// ByID resolves a task through the Primary index's in-memory cache.
func (c *Coordinator) ByID(id string) *types.Task { return c.primary.ByID(id) }

// ByPath resolves a task through the Primary index's in-memory cache.
func (c *Coordinator) ByPath(path string) *types.Task { return c.primary.ByPath(path) }

// Clear empties all three indexes, used when rebuilding from the store.
func (c *Coordinator) Clear(ctx context.Context) {
	c.primary.Clear(ctx)
	c.status.Clear(ctx)
	c.hierarchy.Clear(ctx)
}
