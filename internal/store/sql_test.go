package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-tasks/assistant/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createConversation(t *testing.T, s *SQLStore, id, owner string) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{ID: id, OwnerID: owner}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestOpenMySQLRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverMySQL})
	require.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: DriverMySQL, DSN: "not a dsn"})
	require.Error(t, err)
}

func TestConversationOwnership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createConversation(t, s, "c1", "u1")

	got, err := s.GetConversation(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Nil(t, got.Title)

	_, err = s.GetConversation(ctx, "c1", "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetConversation(ctx, "missing", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.RenameConversation(ctx, "c1", "u2", "stolen")
	assert.ErrorIs(t, err, ErrNotFound)

	renamed, err := s.RenameConversation(ctx, "c1", "u1", "Groceries")
	require.NoError(t, err)
	require.NotNil(t, renamed.Title)
	assert.Equal(t, "Groceries", *renamed.Title)

	assert.ErrorIs(t, s.DeleteConversation(ctx, "c1", "u2"), ErrNotFound)
	require.NoError(t, s.DeleteConversation(ctx, "c1", "u1"))
	_, err = s.GetConversation(ctx, "c1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		createConversation(t, s, fmt.Sprintf("c%d", i), "u1")
	}
	createConversation(t, s, "other", "u2")

	convs, total, err := s.ListConversations(ctx, "u1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, convs, 2)

	convs, _, err = s.ListConversations(ctx, "u1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestAppendMessageRefusesForeignConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createConversation(t, s, "c1", "u1")

	err := s.AppendMessage(ctx, &model.Message{
		ID: "m1", ConversationID: "c1", OwnerID: "u2", Role: model.RoleUser, Content: "hi",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(ctx, "c1", "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListMessagesOrderAndTail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	createConversation(t, s, "c1", "u1")

	// Identical timestamps: insertion order must break the tie.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, &model.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "c1",
			OwnerID:        "u1",
			Role:           model.RoleUser,
			Content:        fmt.Sprintf("message %d", i),
		}))
	}

	all, err := s.ListMessages(ctx, "c1", "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, msg := range all {
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Content)
	}

	tail, err := s.ListMessages(ctx, "c1", "u1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "message 3", tail[0].Content)
	assert.Equal(t, "message 4", tail[1].Content)

	foreign, err := s.ListMessages(ctx, "c1", "u2", 0)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, "u1", "Buy milk")
	require.NoError(t, err)
	assert.NotZero(t, task.ID)
	assert.False(t, task.IsCompleted)

	_, err = s.GetTask(ctx, task.ID, "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	done, err := s.SetTaskCompleted(ctx, task.ID, "u1", true)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)

	_, err = s.CreateTask(ctx, "u1", "Walk dog")
	require.NoError(t, err)

	pending, err := s.ListTasks(ctx, "u1", model.TaskStatusPending, 0, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Walk dog", pending[0].Title)

	completed, err := s.ListTasks(ctx, "u1", model.TaskStatusCompleted, 0, 0)
	require.NoError(t, err)
	require.Len(t, completed, 1)

	all, err := s.ListTasks(ctx, "u1", model.TaskStatusAll, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.UpdateTaskTitle(ctx, task.ID, "u2", "Hijacked")
	assert.ErrorIs(t, err, ErrNotFound)

	renamed, err := s.UpdateTaskTitle(ctx, task.ID, "u1", "Buy oat milk")
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", renamed.Title)

	_, err = s.DeleteTask(ctx, task.ID, "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := s.DeleteTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", deleted.Title)

	_, err = s.GetTask(ctx, task.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleTaskFlipsStoredFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, "u1", "Stretch")
	require.NoError(t, err)

	toggled, err := s.ToggleTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.True(t, toggled.IsCompleted)
	assert.Equal(t, "Stretch", toggled.Title)

	stored, err := s.GetTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)

	toggled, err = s.ToggleTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.False(t, toggled.IsCompleted)

	_, err = s.ToggleTask(ctx, task.ID, "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err = s.GetTask(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.False(t, stored.IsCompleted, "a foreign toggle must not change the row")
}
