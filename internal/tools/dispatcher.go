package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/model"
	"github.com/nimbus-tasks/assistant/internal/store"
	"github.com/nimbus-tasks/assistant/pkg/logger"
	"github.com/nimbus-tasks/assistant/pkg/metrics"
)

// Result is the outcome of one tool invocation. Failures are ordinary
// results so they can be fed back to the model as tool output.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Succeed builds a successful result.
func Succeed(message string, data any) Result {
	return Result{OK: true, Message: message, Data: data}
}

// Fail builds a failed result with no payload.
func Fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// JSON encodes the result as the content of a tool message.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Result{OK: r.OK, Message: r.Message})
	}
	return string(b)
}

const (
	msgConfirmDelete = "Deletion requires confirmation (confirm must be true)"
	msgInternal      = "Internal error: the task store is unavailable, please try again"
)

func notFound(id int64) Result {
	return Fail("Task not found or access denied: %d", id)
}

// deletedTask is the payload returned by delete_task.
type deletedTask struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	WasCompleted bool   `json:"was_completed"`
}

// Dispatcher executes catalog tools against the task store. The identity a
// tool acts for is always the callerID passed to Execute.
type Dispatcher struct {
	tasks  store.TaskStore
	logger *logger.Logger
}

// NewDispatcher creates a dispatcher backed by tasks.
func NewDispatcher(tasks store.TaskStore, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		tasks:  tasks,
		logger: logger.OrNop(log).Named("dispatcher"),
	}
}

// Execute runs the named tool for callerID. Identity-shaped arguments are
// discarded before anything else looks at args. Execute never returns an
// error or panics; every problem becomes a failed Result.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any, callerID string) (res Result) {
	label := name
	if _, known := Lookup(name); !known {
		label = "unknown"
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked",
				zap.String("tool", name),
				zap.Any("panic", r),
			)
			res = Fail("Internal error: tool %s failed", name)
		}
		metrics.RecordToolInvocation(label, res.OK)
	}()

	if strings.TrimSpace(callerID) == "" {
		return Fail("Unauthenticated caller")
	}

	clean, removed := StripIdentity(args)
	if len(removed) > 0 {
		d.logger.Warn("discarded identity arguments from tool call",
			zap.String("tool", name),
			zap.Strings("keys", removed),
			zap.String("owner_id", callerID),
		)
	}

	switch name {
	case AddTask:
		return d.addTask(ctx, clean, callerID)
	case ListTasks:
		return d.listTasks(ctx, clean, callerID)
	case CompleteTask:
		return d.completeTask(ctx, clean, callerID)
	case UpdateTask:
		return d.updateTask(ctx, clean, callerID)
	case DeleteTask:
		return d.deleteTask(ctx, clean, callerID)
	default:
		return Fail("Unknown tool: %s", name)
	}
}

func (d *Dispatcher) addTask(ctx context.Context, args map[string]any, owner string) Result {
	raw, present, err := stringArg(args, "title")
	if err != nil {
		return Fail("%s", err)
	}
	if !present {
		return Fail("%s", missingArg("title"))
	}
	title, err := model.NormalizeTitle(raw)
	if err != nil {
		return Fail("%s", err)
	}

	task, err := d.tasks.CreateTask(ctx, owner, title)
	if err != nil {
		return d.storeFailure(AddTask, err)
	}
	return Succeed("Task created successfully", task)
}

func (d *Dispatcher) listTasks(ctx context.Context, args map[string]any, owner string) Result {
	raw, present, err := stringArg(args, "status")
	if err != nil {
		return Fail("%s", err)
	}
	status := model.TaskStatusAll
	if present && strings.TrimSpace(raw) != "" {
		status = model.TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !status.Valid() {
		return Fail("Invalid status: %s (expected all, pending or completed)", raw)
	}

	tasks, err := d.tasks.ListTasks(ctx, owner, status, 0, 0)
	if err != nil {
		return d.storeFailure(ListTasks, err)
	}
	return Succeed(fmt.Sprintf("Found %d task(s)", len(tasks)), tasks)
}

func (d *Dispatcher) completeTask(ctx context.Context, args map[string]any, owner string) Result {
	id, err := intArg(args, "task_id")
	if err != nil {
		return Fail("%s", err)
	}

	task, err := d.tasks.SetTaskCompleted(ctx, id, owner, true)
	if errors.Is(err, store.ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return d.storeFailure(CompleteTask, err)
	}
	return Succeed("Task marked as completed", task)
}

func (d *Dispatcher) updateTask(ctx context.Context, args map[string]any, owner string) Result {
	id, err := intArg(args, "task_id")
	if err != nil {
		return Fail("%s", err)
	}
	raw, present, err := stringArg(args, "title")
	if err != nil {
		return Fail("%s", err)
	}
	if !present {
		return Fail("%s", missingArg("title"))
	}
	title, err := model.NormalizeTitle(raw)
	if err != nil {
		return Fail("%s", err)
	}

	task, err := d.tasks.UpdateTaskTitle(ctx, id, owner, title)
	if errors.Is(err, store.ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return d.storeFailure(UpdateTask, err)
	}
	return Succeed("Task updated successfully", task)
}

// deleteTask resolves the task before looking at confirm, so a task the
// caller does not own reads as missing whatever the confirmation says.
func (d *Dispatcher) deleteTask(ctx context.Context, args map[string]any, owner string) Result {
	id, err := intArg(args, "task_id")
	if err != nil {
		return Fail("%s", err)
	}
	confirm, _, err := boolArg(args, "confirm")
	if err != nil {
		return Fail("%s", err)
	}

	task, err := d.tasks.GetTask(ctx, id, owner)
	if errors.Is(err, store.ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return d.storeFailure(DeleteTask, err)
	}

	if !confirm {
		return Result{
			OK:      false,
			Message: msgConfirmDelete,
			Data:    deletedTask{ID: task.ID, Title: task.Title, WasCompleted: task.IsCompleted},
		}
	}

	removed, err := d.tasks.DeleteTask(ctx, id, owner)
	if errors.Is(err, store.ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return d.storeFailure(DeleteTask, err)
	}
	return Succeed("Task deleted successfully", deletedTask{
		ID:           removed.ID,
		Title:        removed.Title,
		WasCompleted: removed.IsCompleted,
	})
}

func (d *Dispatcher) storeFailure(tool string, err error) Result {
	d.logger.Error("tool store operation failed",
		zap.String("tool", tool),
		zap.Error(err),
	)
	return Fail(msgInternal)
}
