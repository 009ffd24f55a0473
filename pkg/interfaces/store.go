package interfaces

import (
	"context"
	"time"

	"execq/internal/model"
	"execq/pkg/constants"
)

// TaskStore is the single point of contact with durable task storage.
type TaskStore interface {
	// Create persists a new task record.
	Create(ctx context.Context, task *model.Task) error

	// Get retrieves a task by id. Returns errs.ErrTaskNotFound when absent.
	Get(ctx context.Context, taskID string) (*model.Task, error)

	// UpdateFields updates the given columns of a task by id.
	UpdateFields(ctx context.Context, taskID string, updates map[string]interface{}) error

	// UpdateFieldsWithStatus updates columns only while the task status still
	// equals expected (compare-and-swap). Returns errs.ErrInvalidTransition
	// when the status moved underneath the caller.
	UpdateFieldsWithStatus(ctx context.Context, taskID string, expected constants.TaskStatus, updates map[string]interface{}) error

	// Delete removes a task record. Returns errs.ErrTaskNotTerminal unless the
	// task has reached a terminal state; the check and the delete are atomic.
	Delete(ctx context.Context, taskID string) error

	// CountByStatus returns aggregate task counts keyed by status.
	CountByStatus(ctx context.Context) (map[constants.TaskStatus]int64, error)

	// List returns tasks filtered by status (empty for all), newest first.
	List(ctx context.Context, status constants.TaskStatus, limit, offset int) ([]*model.Task, int64, error)

	// ListQueuedBefore returns QUEUED tasks untouched since the cutoff, for
	// the requeue sweep.
	ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*model.Task, error)

	// ListRunning returns RUNNING tasks, for the timeout sweep.
	ListRunning(ctx context.Context) ([]*model.Task, error)
}
