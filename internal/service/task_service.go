package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"execq/internal/model"
	"execq/pkg/config"
	"execq/pkg/constants"
	"execq/pkg/errs"
	"execq/pkg/interfaces"
	"execq/pkg/logger"

	"github.com/google/uuid"
)

// Fallback timeout bounds for a zero-value worker config.
const (
	defaultTimeoutSeconds = 300
	minTimeoutSeconds     = 1
	maxTimeoutSeconds     = 3600
)

// TaskService owns the submission path and the read-side task queries, plus
// the recovery sweeps that bridge broker failures back into task state.
type TaskService struct {
	store      interfaces.TaskStore
	broker     interfaces.Broker
	reconciler *Reconciler

	defaultTimeout int
	maxTimeout     int
}

// NewTaskService creates a task service. The worker config supplies the
// default and maximum accepted task timeouts.
func NewTaskService(store interfaces.TaskStore, broker interfaces.Broker, reconciler *Reconciler, workerCfg config.WorkerConfig) *TaskService {
	defaultTimeout := workerCfg.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = defaultTimeoutSeconds
	}
	maxTimeout := workerCfg.MaxTimeout
	if maxTimeout <= 0 {
		maxTimeout = maxTimeoutSeconds
	}

	return &TaskService{
		store:          store,
		broker:         broker,
		reconciler:     reconciler,
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
	}
}

// Submit validates the request, creates a QUEUED task record, then enqueues a
// dispatch message. When the enqueue fails after creation the task stays
// QUEUED and undispatched; the requeue sweep recovers it later.
func (s *TaskService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResponse, error) {
	if err := s.validateSubmit(req); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}

	now := time.Now()
	task := &model.Task{
		ID:         uuid.New().String(),
		Status:     constants.TaskStatusQueued,
		Prompt:     req.Prompt,
		Code:       req.Code,
		Timeout:    timeout,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if err := s.enqueue(ctx, task); err != nil {
		// Task row stays QUEUED; the requeue sweep will retry the dispatch
		logger.ErrorCtx(ctx, "enqueue failed after create, task_id: %s, error: %v", task.ID, err)
		return nil, err
	}

	logger.InfoCtx(ctx, "task submitted, task_id: %s, timeout: %ds", task.ID, timeout)

	return &model.SubmitResponse{
		ID:        task.ID,
		Status:    constants.TaskStatusQueued,
		CreatedAt: task.CreatedAt,
	}, nil
}

// SubmitSync submits a task and polls until it reaches a terminal state or
// the wait deadline expires.
func (s *TaskService) SubmitSync(ctx context.Context, req *model.SubmitRequest, wait time.Duration) (*model.TaskResponse, error) {
	resp, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("timed out waiting for task %s", resp.ID)
		case <-ticker.C:
			task, err := s.store.Get(ctx, resp.ID)
			if err != nil {
				continue
			}
			if task.Status.Terminal() {
				return toTaskResponse(task), nil
			}
		}
	}
}

func (s *TaskService) enqueue(ctx context.Context, task *model.Task) error {
	payload := &model.DispatchPayload{
		TaskID:  task.ID,
		Prompt:  task.Prompt,
		Code:    task.Code,
		Timeout: task.Timeout,
	}
	return s.broker.Enqueue(ctx, payload)
}

func (s *TaskService) validateSubmit(req *model.SubmitRequest) error {
	if req.Prompt == "" {
		return errs.NewValidationError("prompt", "is required")
	}
	if req.Timeout != 0 && (req.Timeout < minTimeoutSeconds || req.Timeout > s.maxTimeout) {
		return errs.NewValidationError("timeout",
			fmt.Sprintf("must be between %d and %d seconds", minTimeoutSeconds, s.maxTimeout))
	}
	return nil
}

// GetTask returns the task status view
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*model.TaskResponse, error) {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return toTaskResponse(task), nil
}

// ListTasks returns tasks filtered by status with pagination
func (s *TaskService) ListTasks(ctx context.Context, status constants.TaskStatus, limit, offset int) ([]*model.TaskResponse, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, errs.NewValidationError("status", "is not a known task status")
	}

	tasks, total, err := s.store.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*model.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, toTaskResponse(task))
	}
	return responses, total, nil
}

// DeleteTask removes a task record. Only terminal tasks may be deleted; the
// store enforces the rule atomically with the delete.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.store.Delete(ctx, taskID); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "task deleted, task_id: %s", taskID)
	return nil
}

// TaskStats returns aggregate task counts by status
func (s *TaskService) TaskStats(ctx context.Context) (*model.TaskStats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.TaskStats{Counts: counts}
	for _, c := range counts {
		stats.Total += c
	}
	return stats, nil
}

// QueueStats returns the broker's counter snapshot
func (s *TaskService) QueueStats(ctx context.Context) (*interfaces.QueueStats, error) {
	return s.broker.Stats(ctx)
}

// RequeueStaleQueued re-enqueues QUEUED tasks untouched for the grace period.
// This recovers tasks whose enqueue failed after the store create succeeded,
// and tasks lost to total worker-pool unavailability. The broker's per-task-id
// dedup makes re-enqueueing an already-pending dispatch harmless.
func (s *TaskService) RequeueStaleQueued(ctx context.Context, grace time.Duration) error {
	cutoff := time.Now().Add(-grace)
	tasks, err := s.store.ListQueuedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale queued tasks: %w", err)
	}

	requeued := 0
	for _, task := range tasks {
		err := s.enqueue(ctx, task)
		if err != nil {
			if errors.Is(err, errs.ErrDuplicateDispatch) {
				// Dispatch already pending; nothing to recover
				continue
			}
			logger.WarnCtx(ctx, "requeue failed, task_id: %s, error: %v", task.ID, err)
			continue
		}
		requeued++
		// Bump updated_at so the next sweep skips this task while its fresh
		// dispatch is still pending
		if err := s.store.UpdateFields(ctx, task.ID, map[string]interface{}{"updated_at": time.Now()}); err != nil {
			logger.WarnCtx(ctx, "failed to touch requeued task, task_id: %s, error: %v", task.ID, err)
		}
		logger.InfoCtx(ctx, "stale queued task re-enqueued, task_id: %s, age: %v", task.ID, time.Since(task.CreatedAt).Round(time.Second))
	}

	if requeued > 0 {
		logger.InfoCtx(ctx, "requeue sweep completed, requeued: %d, checked: %d", requeued, len(tasks))
	}
	return nil
}

// TimeoutRunning fails RUNNING tasks that exceeded their execution timeout.
// This is the fallback for workers that died mid-task without ever reporting
// a result; the synthesized failure goes through the ordinary reconciler path.
func (s *TaskService) TimeoutRunning(ctx context.Context) error {
	tasks, err := s.store.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running tasks: %w", err)
	}

	timedOut := 0
	for _, task := range tasks {
		if task.StartedAt == nil {
			continue
		}

		timeout := time.Duration(task.Timeout) * time.Second
		running := time.Since(*task.StartedAt)
		// Grace on top of the task timeout: the worker reports its own
		// timeout result first; this sweep only covers vanished workers
		if running <= timeout+timeout/2+30*time.Second {
			continue
		}

		msg := &model.ResultMessage{
			TaskID:          task.ID,
			WorkerID:        task.WorkerID,
			Status:          constants.ResultStatusFailed,
			ErrorMessage:    fmt.Sprintf("execution timed out after %v (limit %v), no result received", running.Round(time.Second), timeout),
			ExecutionTimeMs: running.Milliseconds(),
			TimedOut:        true,
		}
		if err := s.reconciler.Apply(ctx, msg); err != nil {
			logger.ErrorCtx(ctx, "failed to time out task, task_id: %s, error: %v", task.ID, err)
			continue
		}
		timedOut++
	}

	if timedOut > 0 {
		logger.InfoCtx(ctx, "timeout sweep completed, timed_out: %d, checked: %d", timedOut, len(tasks))
	}
	return nil
}

// BridgeDeadLetters converts retry-exhausted dispatches into terminal FAILED
// tasks through the reconciler, then drops the archived broker record.
func (s *TaskService) BridgeDeadLetters(ctx context.Context) error {
	letters, err := s.broker.ListDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	for _, letter := range letters {
		msg := &model.ResultMessage{
			TaskID:       letter.TaskID,
			Status:       constants.ResultStatusFailed,
			ErrorMessage: fmt.Sprintf("dispatch retries exhausted after %d attempts: %s", letter.Retried, letter.LastErr),
		}

		if err := s.reconciler.Apply(ctx, msg); err != nil && !errors.Is(err, errs.ErrTaskNotFound) {
			logger.ErrorCtx(ctx, "failed to bridge dead letter, task_id: %s, error: %v", letter.TaskID, err)
			continue
		}

		if err := s.broker.RemoveDeadLetter(ctx, letter.TaskID); err != nil {
			logger.WarnCtx(ctx, "failed to remove dead letter, task_id: %s, error: %v", letter.TaskID, err)
		}
	}

	if len(letters) > 0 {
		logger.InfoCtx(ctx, "dead-letter sweep completed, bridged: %d", len(letters))
	}
	return nil
}

// toTaskResponse converts a Task to its status response, deriving delay and
// execution durations in milliseconds.
func toTaskResponse(task *model.Task) *model.TaskResponse {
	var delayMs, executionMs int64

	if task.StartedAt != nil {
		delayMs = task.StartedAt.Sub(task.CreatedAt).Milliseconds()
	}
	if task.CompletedAt != nil && task.StartedAt != nil {
		executionMs = task.CompletedAt.Sub(*task.StartedAt).Milliseconds()
	}

	return &model.TaskResponse{
		ID:              task.ID,
		Status:          task.Status,
		Prompt:          task.Prompt,
		WorkerID:        task.WorkerID,
		Result:          task.Result,
		ErrorMessage:    task.ErrorMessage,
		DelayTimeMs:     delayMs,
		ExecutionTimeMs: executionMs,
		CreatedAt:       task.CreatedAt,
		StartedAt:       task.StartedAt,
		CompletedAt:     task.CompletedAt,
	}
}
