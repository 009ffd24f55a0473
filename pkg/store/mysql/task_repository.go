package mysql

import (
	"context"
	"fmt"
	"time"

	"execq/internal/model"
	"execq/pkg/constants"
	"execq/pkg/errs"
	mysqlmodel "execq/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// TaskRepository handles task persistence in MySQL. It implements
// interfaces.TaskStore.
type TaskRepository struct {
	ds *Datastore
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(ds *Datastore) *TaskRepository {
	return &TaskRepository{ds: ds}
}

// Create creates a new task
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	row := fromDomain(task)
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID
func (r *TaskRepository) Get(ctx context.Context, taskID string) (*model.Task, error) {
	var row mysqlmodel.Task
	err := r.ds.DB(ctx).Where("task_id = ?", taskID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: %s", errs.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return toDomain(&row), nil
}

// UpdateFields updates specific fields of a task by task_id
func (r *TaskRepository) UpdateFields(ctx context.Context, taskID string, updates map[string]interface{}) error {
	result := r.ds.DB(ctx).Model(&mysqlmodel.Task{}).
		Where("task_id = ?", taskID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", errs.ErrTaskNotFound, taskID)
	}
	return nil
}

// UpdateFieldsWithStatus updates fields only while the task status still equals
// expected (compare-and-swap). Duplicate deliveries lose the race here instead
// of overwriting terminal state.
func (r *TaskRepository) UpdateFieldsWithStatus(ctx context.Context, taskID string, expected constants.TaskStatus, updates map[string]interface{}) error {
	result := r.ds.DB(ctx).Model(&mysqlmodel.Task{}).
		Where("task_id = ? AND status = ?", taskID, expected.String()).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: task_id=%s expected=%s", errs.ErrInvalidTransition, taskID, expected)
	}
	return nil
}

// Delete removes a task record once it has reached a terminal state. The
// check and the delete run in one transaction so a concurrent transition
// cannot slip in between them.
func (r *TaskRepository) Delete(ctx context.Context, taskID string) error {
	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		task, err := r.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if !task.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", errs.ErrTaskNotTerminal, taskID, task.Status)
		}

		result := r.ds.DB(ctx).Where("task_id = ?", taskID).Delete(&mysqlmodel.Task{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", errs.ErrTaskNotFound, taskID)
		}
		return nil
	})
}

// CountByStatus counts tasks grouped by status
func (r *TaskRepository) CountByStatus(ctx context.Context) (map[constants.TaskStatus]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.ds.DB(ctx).Model(&mysqlmodel.Task{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	counts := make(map[constants.TaskStatus]int64, len(rows))
	for _, r := range rows {
		counts[constants.TaskStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// List retrieves tasks filtered by status, newest first
func (r *TaskRepository) List(ctx context.Context, status constants.TaskStatus, limit, offset int) ([]*model.Task, int64, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.ds.DB(ctx).Model(&mysqlmodel.Task{})
	if status != "" {
		query = query.Where("status = ?", status.String())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	var rows []*mysqlmodel.Task
	err := query.
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, toDomain(row))
	}
	return tasks, total, nil
}

// ListQueuedBefore retrieves QUEUED tasks untouched since the cutoff.
// Used by the requeue sweep to recover tasks whose enqueue never happened;
// the sweep bumps updated_at on requeue so a task is not re-picked every
// interval while its fresh dispatch is still pending.
func (r *TaskRepository) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*model.Task, error) {
	var rows []*mysqlmodel.Task
	err := r.ds.DB(ctx).
		Where("status = ? AND updated_at < ?", constants.TaskStatusQueued.String(), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list queued tasks: %w", err)
	}

	tasks := make([]*model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, toDomain(row))
	}
	return tasks, nil
}

// ListRunning retrieves all RUNNING tasks, for the timeout sweep
func (r *TaskRepository) ListRunning(ctx context.Context) ([]*model.Task, error) {
	var rows []*mysqlmodel.Task
	err := r.ds.DB(ctx).
		Where("status = ?", constants.TaskStatusRunning.String()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list running tasks: %w", err)
	}

	tasks := make([]*model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, toDomain(row))
	}
	return tasks, nil
}

// AutoMigrate creates or updates the tasks table schema
func (r *TaskRepository) AutoMigrate() error {
	return r.ds.db.AutoMigrate(&mysqlmodel.Task{})
}
