package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

// TaskService exposes the caller's tasks to the REST surface. It applies
// the same title rules as the assistant's tools.
type TaskService struct {
	store  store.TaskStore
	logger *logger.Logger
}

// NewTaskService creates a new task service.
func NewTaskService(tasks store.TaskStore, log *logger.Logger) *TaskService {
	return &TaskService{store: tasks, logger: logger.OrNop(log).Named("tasks")}
}

// List returns the owner's tasks matching status.
func (s *TaskService) List(ctx context.Context, ownerID string, status model.TaskStatus) ([]model.Task, error) {
	if status == "" {
		status = model.TaskStatusAll
	}
	if !status.Valid() {
		return nil, &ValidationError{Err: fmt.Errorf("invalid status %q", status)}
	}
	tasks, err := s.store.ListTasks(ctx, ownerID, status, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Create adds a task.
func (s *TaskService) Create(ctx context.Context, ownerID string, req *model.TaskRequest) (*model.Task, error) {
	title, err := model.NormalizeTitle(req.Title)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	task, err := s.store.CreateTask(ctx, ownerID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.logger.Info("task created", zap.Int64("task_id", task.ID), zap.String("owner_id", ownerID))
	return task, nil
}

// Update renames a task.
func (s *TaskService) Update(ctx context.Context, ownerID string, id int64, req *model.TaskRequest) (*model.Task, error) {
	title, err := model.NormalizeTitle(req.Title)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	task, err := s.store.UpdateTaskTitle(ctx, id, ownerID, title)
	if err != nil {
		return nil, mapTaskErr(err)
	}
	return task, nil
}

// Toggle flips a task between pending and completed.
func (s *TaskService) Toggle(ctx context.Context, ownerID string, id int64) (*model.Task, error) {
	task, err := s.store.ToggleTask(ctx, id, ownerID)
	if err != nil {
		return nil, mapTaskErr(err)
	}
	return task, nil
}

// Delete removes a task. The REST caller has confirmed by issuing DELETE.
func (s *TaskService) Delete(ctx context.Context, ownerID string, id int64) error {
	if _, err := s.store.DeleteTask(ctx, id, ownerID); err != nil {
		return mapTaskErr(err)
	}
	s.logger.Info("task deleted", zap.Int64("task_id", id), zap.String("owner_id", ownerID))
	return nil
}

func mapTaskErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}
