// Package txn implements the transaction coordinator (component C4):
// scoped begin/commit/rollback with per-connection nesting, deadline
// enforcement, and retry of transient storage failures. It does not own
// the database connection itself — the durable store (C5) binds its
// underlying *sql.Tx to a coordinator scope via BindStore so that only
// the outermost commit/rollback touches storage, matching spec §4.2.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/idgen"
)

// Isolation mirrors spec §3.1's Transaction.isolation.
type Isolation string

const (
	Deferred  Isolation = "DEFERRED"
	Immediate Isolation = "IMMEDIATE"
	Exclusive Isolation = "EXCLUSIVE"
)

// Status mirrors spec §3.1's Transaction.status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusCommitted   Status = "committed"
	StatusRolledBack  Status = "rolled_back"
)

// Op records a single operation performed within a transaction, used to
// replay ordering information and as an audit trail.
type Op struct {
	Kind     string
	EntityID string
}

// Backup is a point-in-time snapshot (or tombstone marker) recorded before
// a mutation. The coordinator only stores it; Rollback does not apply it.
type Backup struct {
	EntityID  string
	Snapshot  any
	Tombstone bool
}

// StoreTx is the minimal interface the durable store's real database
// transaction must satisfy to be bound to a coordinator scope.
type StoreTx interface {
	Commit() error
	Rollback() error
}

type entry struct {
	mu         sync.Mutex
	id         string
	connID     string
	isolation  Isolation
	depth      int
	startTime  time.Time
	timeout    time.Duration
	status     Status
	operations []Op
	backups    map[string]Backup
	storeTx    StoreTx
	timer      *time.Timer
}

// Coordinator is the C4 transaction coordinator.
type Coordinator struct {
	mu          sync.Mutex
	byID        map[string]*entry
	activeByConn map[string]string // connID -> txID of its active (possibly nested) scope
	bus         *eventbus.Bus
}

// New constructs a Coordinator publishing lifecycle events on bus.
func New(bus *eventbus.Bus) *Coordinator {
	return &Coordinator{
		byID:         make(map[string]*entry),
		activeByConn: make(map[string]string),
		bus:          bus,
	}
}

// Begin opens (or joins, if the connection already has an active scope) a
// transaction scope. A nested Begin on the same connection increments the
// scope's depth counter and returns the existing id.
func (c *Coordinator) Begin(ctx context.Context, connID string, isolation Isolation, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existingID, ok := c.activeByConn[connID]; ok {
		e := c.byID[existingID]
		e.mu.Lock()
		e.depth++
		e.mu.Unlock()
		return existingID, nil
	}

	id := idgen.New(idgen.PrefixTransaction)
	if id == "" {
		id = uuid.NewString()
	}
	e := &entry{
		id:        id,
		connID:    connID,
		isolation: isolation,
		depth:     1,
		startTime: time.Now(),
		timeout:   timeout,
		status:    StatusPending,
		backups:   make(map[string]Backup),
	}
	c.byID[id] = e
	c.activeByConn[connID] = id

	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			c.handleTimeout(id)
		})
	}

	c.publish(ctx, eventbus.EventTransactionStarted, id)
	return id, nil
}

// BindStore attaches the durable store's real database transaction to a
// scope so that commit/rollback at depth 0 can finalize it.
func (c *Coordinator) BindStore(txID string, storeTx StoreTx) error {
	c.mu.Lock()
	e, ok := c.byID[txID]
	c.mu.Unlock()
	if !ok {
		return coreerr.New(coreerr.KindTransactionNotFound, "transaction not found")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storeTx = storeTx
	return nil
}

// RecordOp appends an operation to the scope's ordered operation log.
func (c *Coordinator) RecordOp(txID string, op Op) error {
	e, err := c.lookup(txID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operations = append(e.operations, op)
	return nil
}

// RecordBackup stores a pre-mutation snapshot (or tombstone) for an
// entity, keeping the first one recorded per entity. Backups returns them
// while the scope is open; Rollback discards them without restoring
// anything.
func (c *Coordinator) RecordBackup(txID, entityID string, snapshot any, tombstone bool) error {
	e, err := c.lookup(txID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.backups[entityID]; !exists {
		e.backups[entityID] = Backup{EntityID: entityID, Snapshot: snapshot, Tombstone: tombstone}
	}
	return nil
}

// Backups returns a snapshot of the recorded backups for a scope.
func (c *Coordinator) Backups(txID string) (map[string]Backup, error) {
	e, err := c.lookup(txID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Backup, len(e.backups))
	for k, v := range e.backups {
		out[k] = v
	}
	return out, nil
}

func (c *Coordinator) lookup(txID string) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[txID]
	if !ok {
		return nil, coreerr.New(coreerr.KindTransactionNotFound, "transaction not found")
	}
	return e, nil
}

// Commit finalizes a scope. Only the outermost (depth 0 after decrement)
// commit actually commits the bound store transaction.
func (c *Coordinator) Commit(ctx context.Context, txID string) error {
	e, err := c.lookup(txID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.status != StatusPending {
		e.mu.Unlock()
		return coreerr.New(coreerr.KindTransaction, "transaction already finalized")
	}
	e.depth--
	outer := e.depth <= 0
	var storeTx StoreTx
	if outer {
		storeTx = e.storeTx
	}
	e.mu.Unlock()

	if !outer {
		return nil
	}

	if storeTx != nil {
		if err := storeTx.Commit(); err != nil {
			return coreerr.Wrap(coreerr.KindStorageIO, err, "commit failed").AsRetryable()
		}
	}

	c.finalize(e, StatusCommitted)
	c.publish(ctx, eventbus.EventTransactionCommitted, txID)
	return nil
}

// Rollback aborts a scope. A rollback at any nesting depth rolls back the
// bound store transaction at once and ends the whole scope, so a later
// Commit on the same id fails with TRANSACTION_NOT_FOUND.
func (c *Coordinator) Rollback(ctx context.Context, txID string) error {
	e, err := c.lookup(txID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.status != StatusPending {
		e.mu.Unlock()
		return nil
	}
	e.depth = 0 // a rollback at any nesting level aborts the whole scope
	storeTx := e.storeTx
	e.mu.Unlock()

	if storeTx != nil {
		_ = storeTx.Rollback()
	}

	c.finalize(e, StatusRolledBack)
	c.publish(ctx, eventbus.EventTransactionRolledBack, txID)
	return nil
}

func (c *Coordinator) handleTimeout(txID string) {
	c.mu.Lock()
	e, ok := c.byID[txID]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.status != StatusPending {
		e.mu.Unlock()
		return
	}
	storeTx := e.storeTx
	e.status = StatusRolledBack
	e.mu.Unlock()

	if storeTx != nil {
		_ = storeTx.Rollback()
	}

	c.mu.Lock()
	delete(c.byID, txID)
	if c.activeByConn[e.connID] == txID {
		delete(c.activeByConn, e.connID)
	}
	c.mu.Unlock()

	c.publish(context.Background(), eventbus.EventTransactionTimeout, txID)
}

func (c *Coordinator) finalize(e *entry, status Status) {
	e.mu.Lock()
	e.status = status
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()

	c.mu.Lock()
	delete(c.byID, e.id)
	if c.activeByConn[e.connID] == e.id {
		delete(c.activeByConn, e.connID)
	}
	c.mu.Unlock()
}

func (c *Coordinator) publish(ctx context.Context, t eventbus.EventType, txID string) {
	if c.bus == nil {
		return
	}
	_, _ = c.bus.Dispatch(ctx, &eventbus.Event{Type: t, TransactionID: txID, Timestamp: time.Now().UnixMilli()})
}

// ExecOptions configures Execute's retry behavior.
type ExecOptions struct {
	Isolation   Isolation
	Timeout     time.Duration
	MaxAttempts int
}

// Execute runs work inside a freshly begun scope on connID, committing on
// success and rolling back on failure. Transient storage errors (tagged
// Retryable) are retried with exponential backoff: base 100ms, cap 1s,
// ceiling of 3 attempts, per spec §4.2.
func (c *Coordinator) Execute(ctx context.Context, connID string, opts ExecOptions, work func(ctx context.Context, txID string) error) error {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		txID, err := c.Begin(ctx, connID, opts.Isolation, opts.Timeout)
		if err != nil {
			return err
		}

		err = work(ctx, txID)
		if err != nil {
			_ = c.Rollback(ctx, txID)
			lastErr = err
			if coreerr.IsRetryable(err) {
				continue
			}
			return err
		}

		if err := c.Commit(ctx, txID); err != nil {
			lastErr = err
			if coreerr.IsRetryable(err) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("txn: exhausted %d attempts: %w", maxAttempts, lastErr)
}
