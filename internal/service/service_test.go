package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskcore/taskcore/internal/cache"
	"github.com/taskcore/taskcore/internal/config"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/service"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/store/sqlite"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
	"github.com/taskcore/taskcore/internal/validation"
)

func newTestServices(t *testing.T) *service.Services {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.BaseDir = t.TempDir()

	st, err := sqlite.Open(context.Background(), cfg.Storage, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New(nil)
	idx := indexcoord.New(nil)
	c := cache.New(cache.Config{CheckInterval: time.Hour}, nil, bus)
	t.Cleanup(c.Close)

	return service.New(service.Deps{
		Store:      st,
		Txn:        txn.New(bus),
		Index:      idx,
		Cache:      c,
		Bus:        bus,
		Validation: validation.New(validation.Capability{}),
		Clock:      types.SystemClock{},
		ConnID:     "test-conn",
	})
}

func TestCreateAndGetTask(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	task := &types.Task{
		Path:     "api",
		Name:     "API work",
		Type:     types.TypeTask,
		Status:   types.StatusBacklog,
		Priority: types.PriorityMedium,
	}
	created, err := svc.Task.CreateTask(ctx, task, validation.Strict)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.Task.GetTask(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "API work", got.Name)
}

func TestCreateTaskRejectsDuplicateName(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	parent := &types.Task{Path: "proj", Name: "proj", Type: types.TypeGroup, Priority: types.PriorityMedium}
	_, err := svc.Task.CreateTask(ctx, parent, validation.Strict)
	require.NoError(t, err)

	first := &types.Task{Path: "proj/api", Name: "API", Type: types.TypeTask, Priority: types.PriorityMedium}
	_, err = svc.Task.CreateTask(ctx, first, validation.Strict)
	require.NoError(t, err)

	second := &types.Task{Path: "proj/API", Name: "API dup", Type: types.TypeTask, Priority: types.PriorityMedium}
	_, err = svc.Task.CreateTask(ctx, second, validation.Strict)
	require.Error(t, err)
}

func TestUpdateTaskBumpsVersionAndInvalidatesCache(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	task := &types.Task{Path: "api", Name: "API", Type: types.TypeTask, Priority: types.PriorityMedium}
	created, err := svc.Task.CreateTask(ctx, task, validation.Strict)
	require.NoError(t, err)

	_, err = svc.Task.GetTask(ctx, created.ID)
	require.NoError(t, err)

	updated := *created
	updated.Name = "API v2"
	result, err := svc.Task.UpdateTask(ctx, &updated, validation.Strict)
	require.NoError(t, err)
	require.Equal(t, created.Version+1, result.Version)

	got, err := svc.Task.GetTask(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "API v2", got.Name)
}

// TestGetTaskByPathSeesUpdateAfterCachingByPath exercises spec.md
// scenario S5: getTask by path, updateTask by path, getTask by path
// again must see the update, not a path-keyed cache entry left stale
// because the write only invalidated the id-keyed entry.
func TestGetTaskByPathSeesUpdateAfterCachingByPath(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	task := &types.Task{Path: "api", Name: "API", Type: types.TypeTask, Priority: types.PriorityMedium}
	created, err := svc.Task.CreateTask(ctx, task, validation.Strict)
	require.NoError(t, err)

	cached, err := svc.Task.GetTask(ctx, "api")
	require.NoError(t, err)
	require.Equal(t, "API", cached.Name)

	updated := *created
	updated.Name = "API v2"
	_, err = svc.Task.UpdateTask(ctx, &updated, validation.Strict)
	require.NoError(t, err)

	got, err := svc.Task.GetTask(ctx, "api")
	require.NoError(t, err)
	require.Equal(t, "API v2", got.Name)
}

// TestMoveTaskInvalidatesPreMovePathCache ensures a cached lookup under
// the pre-move path doesn't keep serving the task after MoveTask
// reparents it elsewhere.
func TestMoveTaskInvalidatesPreMovePathCache(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	root1 := &types.Task{Path: "team-a", Name: "team-a", Type: types.TypeGroup, Priority: types.PriorityMedium}
	_, err := svc.Task.CreateTask(ctx, root1, validation.Strict)
	require.NoError(t, err)

	root2 := &types.Task{Path: "team-b", Name: "team-b", Type: types.TypeGroup, Priority: types.PriorityMedium}
	_, err = svc.Task.CreateTask(ctx, root2, validation.Strict)
	require.NoError(t, err)

	task := &types.Task{Path: "team-a/api", Name: "API", Type: types.TypeTask, Priority: types.PriorityMedium, ParentPath: "team-a"}
	created, err := svc.Task.CreateTask(ctx, task, validation.Strict)
	require.NoError(t, err)

	_, err = svc.Task.GetTask(ctx, "team-a/api")
	require.NoError(t, err)

	_, err = svc.Task.MoveTask(ctx, created.ID, "team-b", validation.Strict)
	require.NoError(t, err)

	_, err = svc.Task.GetTask(ctx, "team-a/api")
	require.Error(t, err, "the pre-move path must no longer resolve to a cached stale entry")
}

func TestDeleteTaskBlocksOnChildren(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	parent := &types.Task{Path: "proj", Name: "proj", Type: types.TypeGroup, Priority: types.PriorityMedium}
	_, err := svc.Task.CreateTask(ctx, parent, validation.Strict)
	require.NoError(t, err)

	child := &types.Task{Path: "proj/api", Name: "API", Type: types.TypeTask, Priority: types.PriorityMedium, ParentPath: "proj"}
	_, err = svc.Task.CreateTask(ctx, child, validation.Strict)
	require.NoError(t, err)

	parentTask, err := svc.Task.GetTask(ctx, "proj")
	require.NoError(t, err)

	err = svc.Task.DeleteTask(ctx, parentTask.ID, types.DeleteBlock)
	require.Error(t, err)
}

func TestChangeStatusRejectsInvalidTransition(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	task := &types.Task{Path: "api", Name: "API", Type: types.TypeTask, Status: types.StatusBacklog, Priority: types.PriorityMedium}
	created, err := svc.Task.CreateTask(ctx, task, validation.Strict)
	require.NoError(t, err)

	_, err = svc.Task.ChangeStatus(ctx, created.ID, types.StatusCompleted, validation.Strict)
	require.Error(t, err)
}

func TestQueryTasksPaginates(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		task := &types.Task{
			Path:     "t" + string(rune('a'+i)),
			Name:     "task",
			Type:     types.TypeTask,
			Priority: types.PriorityMedium,
		}
		_, err := svc.Task.CreateTask(ctx, task, validation.Strict)
		require.NoError(t, err)
	}

	page, err := svc.Task.QueryTasks(ctx, store.Filter{}, types.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 3, page.Total)
}
