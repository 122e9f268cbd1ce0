package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/eventbus"
)

type fakeStoreTx struct {
	committed bool
	rolledBack bool
	commitErr error
}

func (f *fakeStoreTx) Commit() error   { f.committed = true; return f.commitErr }
func (f *fakeStoreTx) Rollback() error { f.rolledBack = true; return nil }

func TestNestedBeginSharesScope(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	id1, err := c.Begin(ctx, "conn1", Immediate, 0)
	require.NoError(t, err)
	id2, err := c.Begin(ctx, "conn1", Immediate, 0)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	store := &fakeStoreTx{}
	require.NoError(t, c.BindStore(id1, store))

	// Inner commit must not finalize the store transaction.
	require.NoError(t, c.Commit(ctx, id1))
	assert.False(t, store.committed)

	// Outer commit finalizes it.
	require.NoError(t, c.Commit(ctx, id1))
	assert.True(t, store.committed)
}

func TestRollbackDiscardsBackupsAndRollsBackStore(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	id, err := c.Begin(ctx, "conn1", Deferred, 0)
	require.NoError(t, err)

	require.NoError(t, c.RecordBackup(id, "task_abc", "snapshot-data", false))
	backups, err := c.Backups(id)
	require.NoError(t, err)
	require.Contains(t, backups, "task_abc")

	store := &fakeStoreTx{}
	require.NoError(t, c.BindStore(id, store))
	require.NoError(t, c.Rollback(ctx, id))
	assert.True(t, store.rolledBack)

	_, err = c.Backups(id)
	assert.ErrorIs(t, err, coreerr.New(coreerr.KindTransactionNotFound, ""))
}

func TestTimeoutRollsBackAndEmitsOnce(t *testing.T) {
	bus := eventbus.New(nil)
	var timeoutCount int
	bus.Register(&countingHandler{target: eventbus.EventTransactionTimeout, count: &timeoutCount})

	c := New(bus)
	ctx := context.Background()
	id, err := c.Begin(ctx, "conn1", Immediate, 20*time.Millisecond)
	require.NoError(t, err)

	store := &fakeStoreTx{}
	require.NoError(t, c.BindStore(id, store))

	time.Sleep(80 * time.Millisecond)

	assert.True(t, store.rolledBack)
	assert.Equal(t, 1, timeoutCount)

	err = c.Commit(ctx, id)
	assert.Error(t, err)
	var ce *coreerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, coreerr.KindTransactionNotFound, ce.Kind)
}

func TestExecuteRetriesRetryableErrors(t *testing.T) {
	c := New(nil)
	attempts := 0
	err := c.Execute(context.Background(), "conn1", ExecOptions{Isolation: Immediate}, func(ctx context.Context, txID string) error {
		attempts++
		if attempts < 2 {
			return coreerr.New(coreerr.KindStorageIO, "busy").AsRetryable()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestExecuteDoesNotRetryNonRetryable(t *testing.T) {
	c := New(nil)
	attempts := 0
	err := c.Execute(context.Background(), "conn1", ExecOptions{Isolation: Immediate}, func(ctx context.Context, txID string) error {
		attempts++
		return coreerr.New(coreerr.KindValidation, "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	c := New(nil)
	attempts := 0
	err := c.Execute(context.Background(), "conn1", ExecOptions{Isolation: Immediate, MaxAttempts: 3}, func(ctx context.Context, txID string) error {
		attempts++
		return coreerr.New(coreerr.KindStorageIO, "still busy").AsRetryable()
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.Is(err, err))
}

type countingHandler struct {
	target eventbus.EventType
	count  *int
}

func (h *countingHandler) ID() string                  { return "counter" }
func (h *countingHandler) Handles() []eventbus.EventType { return []eventbus.EventType{h.target} }
func (h *countingHandler) Priority() int               { return 0 }
func (h *countingHandler) Handle(_ context.Context, e *eventbus.Event, _ *eventbus.Result) error {
	if e.Type == h.target {
		*h.count++
	}
	return nil
}
