package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nimbus-tasks/assistant/internal/middleware"
	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/service"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

const taskNotFound = "task not found"

// TaskHandler handles the task endpoints.
type TaskHandler struct {
	service *service.TaskService
	logger  *logger.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(svc *service.TaskService, log *logger.Logger) *TaskHandler {
	return &TaskHandler{service: svc, logger: logger.OrNop(log)}
}

// List handles GET /api/v1/tasks?status=all|pending|completed
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tasks, err := h.service.List(ctx, middleware.GetOwnerID(ctx), model.TaskStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.Create(ctx, middleware.GetOwnerID(ctx), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound, "failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Update handles PUT /api/v1/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var req model.TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.Update(ctx, middleware.GetOwnerID(ctx), id, &req)
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Toggle handles PATCH /api/v1/tasks/{id}/toggle
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Toggle(ctx, middleware.GetOwnerID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, err, taskNotFound, "failed to toggle task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, middleware.GetOwnerID(ctx), id); err != nil {
		writeServiceError(w, h.logger, err, taskNotFound, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// taskID parses the {id} path parameter. Ids that cannot exist read as
// not found.
func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, taskNotFound)
		return 0, false
	}
	return id, true
}
