// Package service implements the chat, conversation and task use cases on
// top of the store, the agent and the event publisher.
package service

import "errors"

var (
	// ErrConversationNotFound is returned for conversations that do not
	// exist or belong to someone else.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrTaskNotFound is returned for tasks that do not exist or belong to
	// someone else.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEmptyMessage is returned when a chat message has no content.
	ErrEmptyMessage = errors.New("message is required")
)

// ValidationError carries a message safe to show to the caller.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }
