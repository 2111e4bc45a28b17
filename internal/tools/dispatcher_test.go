package tools

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

func newDispatcher(t *testing.T) (*Dispatcher, *store.SQLStore) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewDispatcher(s, logger.Nop()), s
}

func TestAddTaskUsesCallerIdentity(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	res := d.Execute(ctx, AddTask, map[string]any{
		"title":   "  Buy milk  ",
		"user_id": "mallory",
		"ownerId": "mallory",
	}, "alice")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Task created successfully", res.Message)

	task := res.Data.(*model.Task)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, "alice", task.OwnerID)

	mine, err := s.ListTasks(ctx, "alice", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := s.ListTasks(ctx, "mallory", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestAddTaskValidatesTitle(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	res := d.Execute(ctx, AddTask, map[string]any{"title": "   "}, "alice")
	assert.False(t, res.OK)
	assert.Equal(t, "Title is required", res.Message)

	long := make([]rune, model.MaxTitleLength+1)
	for i := range long {
		long[i] = 'ک'
	}
	res = d.Execute(ctx, AddTask, map[string]any{"title": string(long)}, "alice")
	assert.False(t, res.OK)
	assert.Equal(t, "Title too long (max 80 characters)", res.Message)

	res = d.Execute(ctx, AddTask, map[string]any{}, "alice")
	assert.False(t, res.OK)
	assert.Equal(t, "Missing required argument: title", res.Message)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	done, err := s.CreateTask(ctx, "alice", "done")
	require.NoError(t, err)
	_, err = s.SetTaskCompleted(ctx, done.ID, "alice", true)
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, "alice", "open")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, "bob", "not yours")
	require.NoError(t, err)

	res := d.Execute(ctx, ListTasks, nil, "alice")
	require.True(t, res.OK)
	assert.Equal(t, "Found 2 task(s)", res.Message)

	res = d.Execute(ctx, ListTasks, map[string]any{"status": "pending"}, "alice")
	require.True(t, res.OK)
	tasks := res.Data.([]model.Task)
	require.Len(t, tasks, 1)
	assert.Equal(t, "open", tasks[0].Title)

	res = d.Execute(ctx, ListTasks, map[string]any{"status": "archived"}, "alice")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "Invalid status: archived")
}

func TestForeignTaskLooksMissing(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	task, err := s.CreateTask(ctx, "bob", "bob's task")
	require.NoError(t, err)

	calls := []struct {
		name string
		args map[string]any
	}{
		{CompleteTask, map[string]any{"task_id": task.ID}},
		{UpdateTask, map[string]any{"task_id": task.ID, "title": "mine now"}},
		{DeleteTask, map[string]any{"task_id": task.ID, "confirm": true}},
		{DeleteTask, map[string]any{"task_id": task.ID, "confirm": false}},
		{DeleteTask, map[string]any{"task_id": task.ID}},
	}
	for _, c := range calls {
		res := d.Execute(ctx, c.name, c.args, "alice")
		assert.False(t, res.OK, c.name)
		assert.Equal(t, "Task not found or access denied: "+strconv.FormatInt(task.ID, 10), res.Message, c.name)
	}

	// Same shape as an id that never existed.
	res := d.Execute(ctx, CompleteTask, map[string]any{"task_id": 9999}, "alice")
	assert.Equal(t, "Task not found or access denied: 9999", res.Message)

	got, err := s.GetTask(ctx, task.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob's task", got.Title)
	assert.False(t, got.IsCompleted)
}

func TestDeleteTaskRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	task, err := s.CreateTask(ctx, "alice", "Old task")
	require.NoError(t, err)

	res := d.Execute(ctx, DeleteTask, map[string]any{"task_id": task.ID}, "alice")
	assert.False(t, res.OK)
	assert.Equal(t, "Deletion requires confirmation (confirm must be true)", res.Message)

	res = d.Execute(ctx, DeleteTask, map[string]any{"task_id": task.ID, "confirm": false}, "alice")
	assert.False(t, res.OK)

	_, err = s.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err, "unconfirmed delete must not remove the task")

	res = d.Execute(ctx, DeleteTask, map[string]any{"task_id": task.ID, "confirm": true}, "alice")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Task deleted successfully", res.Message)
	assert.Equal(t, deletedTask{ID: task.ID, Title: "Old task", WasCompleted: false}, res.Data)

	_, err = s.GetTask(ctx, task.ID, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteAndUpdateTask(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	task, err := s.CreateTask(ctx, "alice", "draft")
	require.NoError(t, err)

	res := d.Execute(ctx, UpdateTask, map[string]any{"task_id": strconv.FormatInt(task.ID, 10), "title": "final"}, "alice")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "final", res.Data.(*model.Task).Title)

	res = d.Execute(ctx, CompleteTask, map[string]any{"task_id": float64(task.ID)}, "alice")
	require.True(t, res.OK, res.Message)
	assert.True(t, res.Data.(*model.Task).IsCompleted)

	res = d.Execute(ctx, CompleteTask, map[string]any{"task_id": "abc"}, "alice")
	assert.False(t, res.OK)
	assert.Equal(t, "Invalid argument task_id: expected an integer", res.Message)
}

func TestUnknownToolAndMissingCaller(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	res := d.Execute(ctx, "drop_database", nil, "alice")
	assert.False(t, res.OK)
	assert.Equal(t, "Unknown tool: drop_database", res.Message)

	res = d.Execute(ctx, AddTask, map[string]any{"title": "x"}, " ")
	assert.False(t, res.OK)
}

type brokenTasks struct{ store.TaskStore }

func (brokenTasks) CreateTask(context.Context, string, string) (*model.Task, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenTasks) GetTask(context.Context, int64, string) (*model.Task, error) {
	panic("boom")
}

func TestStoreFaultsBecomeResults(t *testing.T) {
	d := NewDispatcher(brokenTasks{}, nil)
	ctx := context.Background()

	res := d.Execute(ctx, AddTask, map[string]any{"title": "x"}, "alice")
	assert.False(t, res.OK)
	assert.NotContains(t, res.Message, "connection refused")

	res = d.Execute(ctx, DeleteTask, map[string]any{"task_id": 1, "confirm": true}, "alice")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "Internal error")
}

func TestResultJSON(t *testing.T) {
	assert.JSONEq(t, `{"ok":false,"message":"nope","data":null}`, Fail("nope").JSON())
	assert.JSONEq(t, `{"ok":true,"message":"yes","data":{"n":1}}`, Succeed("yes", map[string]int{"n": 1}).JSON())
}

func TestUpdateTaskRejectsBlankTitle(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	task, err := s.CreateTask(ctx, "alice", "orig")
	require.NoError(t, err)

	for _, title := range []string{"", "   ", "\t\n"} {
		res := d.Execute(ctx, UpdateTask, map[string]any{
			"task_id": task.ID,
			"title":   title,
			"user_id": "bob",
		}, "alice")
		assert.False(t, res.OK, "title %q", title)
		assert.Equal(t, "Title is required", res.Message, "title %q", title)
	}

	got, err := s.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "orig", got.Title)
	assert.Equal(t, task.UpdatedAt, got.UpdatedAt)
}

func TestForgedIdentityIsIgnoredByEveryTool(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	forged := func(args map[string]any) map[string]any {
		args["user_id"] = "bob"
		args["owner_id"] = "bob"
		args["userId"] = "bob"
		return args
	}

	tests := []struct {
		name string
		tool string
		args func(id int64) map[string]any
	}{
		{"complete", CompleteTask, func(id int64) map[string]any { return map[string]any{"task_id": id} }},
		{"update", UpdateTask, func(id int64) map[string]any { return map[string]any{"task_id": id, "title": "renamed"} }},
		{"delete", DeleteTask, func(id int64) map[string]any { return map[string]any{"task_id": id, "confirm": true} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mine, err := s.CreateTask(ctx, "alice", "alice "+tc.name)
			require.NoError(t, err)
			theirs, err := s.CreateTask(ctx, "bob", "bob "+tc.name)
			require.NoError(t, err)

			// Aimed at bob's task with bob's identity forged: not found.
			res := d.Execute(ctx, tc.tool, forged(tc.args(theirs.ID)), "alice")
			assert.False(t, res.OK)
			assert.Equal(t, "Task not found or access denied: "+strconv.FormatInt(theirs.ID, 10), res.Message)

			// Aimed at alice's own task: acts for alice despite the forged keys.
			res = d.Execute(ctx, tc.tool, forged(tc.args(mine.ID)), "alice")
			assert.True(t, res.OK, res.Message)

			untouched, err := s.GetTask(ctx, theirs.ID, "bob")
			require.NoError(t, err)
			assert.Equal(t, "bob "+tc.name, untouched.Title)
			assert.False(t, untouched.IsCompleted)
			assert.Equal(t, theirs.UpdatedAt, untouched.UpdatedAt)
		})
	}

	t.Run("add", func(t *testing.T) {
		before, err := s.ListTasks(ctx, "bob", model.TaskStatusAll, 0, 0)
		require.NoError(t, err)

		res := d.Execute(ctx, AddTask, forged(map[string]any{"title": "planted"}), "alice")
		require.True(t, res.OK, res.Message)
		assert.Equal(t, "alice", res.Data.(*model.Task).OwnerID)

		after, err := s.ListTasks(ctx, "bob", model.TaskStatusAll, 0, 0)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("list", func(t *testing.T) {
		res := d.Execute(ctx, ListTasks, forged(map[string]any{"status": "all"}), "alice")
		require.True(t, res.OK, res.Message)
		for _, task := range res.Data.([]model.Task) {
			assert.Equal(t, "alice", task.OwnerID)
		}
	})
}

func TestConfirmedDeleteRemovesOnlyThatTask(t *testing.T) {
	ctx := context.Background()
	d, s := newDispatcher(t)

	var ids []int64
	for _, title := range []string{"one", "two", "three"} {
		task, err := s.CreateTask(ctx, "alice", title)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	other, err := s.CreateTask(ctx, "bob", "bob keeps this")
	require.NoError(t, err)

	res := d.Execute(ctx, DeleteTask, map[string]any{"task_id": ids[1], "confirm": true}, "alice")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, deletedTask{ID: ids[1], Title: "two"}, res.Data)

	remaining, err := s.ListTasks(ctx, "alice", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	titles := []string{remaining[0].Title, remaining[1].Title}
	assert.ElementsMatch(t, []string{"one", "three"}, titles)

	_, err = s.GetTask(ctx, other.ID, "bob")
	assert.NoError(t, err)
}
