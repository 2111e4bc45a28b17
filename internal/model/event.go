package model

import (
	"time"
)

// EventType represents the type of agent run event.
type EventType string

const (
	EventTypeRunCompleted EventType = "run_completed"
	EventTypeRunFallback  EventType = "run_fallback"
)

// RunEvent summarizes one agent run for audit consumers.
type RunEvent struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id"`
	OwnerID        string          `json:"owner_id"`
	Iterations     int             `json:"iterations"`
	Language       string          `json:"language"`
	Intent         string          `json:"intent"`
	ToolCalls      []ToolCallEntry `json:"tool_calls"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ToolCallEntry is the audit form of one tool invocation.
type ToolCallEntry struct {
	Tool string `json:"tool"`
	OK   bool   `json:"ok"`
}
