// Package store persists conversations, messages and tasks in a relational
// database. Every lookup is keyed on (id, owner) together; a row that exists
// under another owner is reported exactly like a missing row.
package store

import (
	"context"
	"errors"

	"github.com/nimbus-tasks/assistant/internal/model"
)

// ErrNotFound is returned when an entity does not exist or is not owned by
// the caller. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// ConversationStore persists conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id, ownerID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]model.Conversation, int, error)
	RenameConversation(ctx context.Context, id, ownerID, title string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id, ownerID string) error
}

// MessageStore persists conversation messages.
type MessageStore interface {
	// AppendMessage stores msg and assigns its Seq. It returns ErrNotFound
	// when the conversation is not owned by msg.OwnerID.
	AppendMessage(ctx context.Context, msg *model.Message) error

	// ListMessages returns the newest limit messages in chronological
	// order. A limit of zero returns every message.
	ListMessages(ctx context.Context, conversationID, ownerID string, limit int) ([]model.Message, error)
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, ownerID, title string) (*model.Task, error)
	GetTask(ctx context.Context, id int64, ownerID string) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID string, status model.TaskStatus, limit, offset int) ([]model.Task, error)
	UpdateTaskTitle(ctx context.Context, id int64, ownerID, title string) (*model.Task, error)
	SetTaskCompleted(ctx context.Context, id int64, ownerID string, completed bool) (*model.Task, error)
	ToggleTask(ctx context.Context, id int64, ownerID string) (*model.Task, error)
	DeleteTask(ctx context.Context, id int64, ownerID string) (*model.Task, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	ConversationStore
	MessageStore
	TaskStore

	Ping(ctx context.Context) error
	Close() error
}
