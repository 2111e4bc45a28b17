package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the longest task title accepted, in characters.
const MaxTitleLength = 80

// Title validation errors. Their messages are shown to users and the model.
var (
	ErrTitleRequired = errors.New("Title is required")
	ErrTitleTooLong  = errors.New("Title too long (max 80 characters)")
)

// NormalizeTitle trims raw and checks it against the title rules.
func NormalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

// TaskStatus filters task listings.
type TaskStatus string

const (
	TaskStatusAll       TaskStatus = "all"
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid reports whether s is one of the known filters.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusAll, TaskStatusPending, TaskStatusCompleted:
		return true
	}
	return false
}

// Task is a single to-do item owned by one user.
type Task struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskRequest is the body for creating or renaming a task.
type TaskRequest struct {
	Title string `json:"title"`
}
