package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"execq/internal/lifecycle"
	"execq/internal/model"
	"execq/pkg/constants"
	"execq/pkg/errs"
	"execq/pkg/interfaces"
	"execq/pkg/logger"
)

// Reconciler is the single writer of task lifecycle state. The dispatch-
// acknowledgment path (MarkStarted) advances QUEUED->RUNNING; Apply advances
// into a terminal state exactly once per task. Both are idempotent: duplicate
// or late deliveries are absorbed as logged no-ops.
type Reconciler struct {
	store      interfaces.TaskStore
	httpClient *http.Client
}

// NewReconciler creates a reconciler over the task store
func NewReconciler(store interfaces.TaskStore) *Reconciler {
	return &Reconciler{
		store: store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MarkStarted applies the dispatch acknowledgment: QUEUED->RUNNING, setting
// started_at and worker_id exactly once. A repeated acknowledgment for a task
// that already left QUEUED is a no-op.
func (r *Reconciler) MarkStarted(ctx context.Context, taskID, workerID string) error {
	task, err := r.store.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if _, err := lifecycle.Apply(task.Status, lifecycle.EventStart); err != nil {
		// Already running or terminal; the first acknowledgment won
		logger.DebugCtx(ctx, "start ack ignored, task_id: %s, status: %s", taskID, task.Status)
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     constants.TaskStatusRunning.String(),
		"worker_id":  workerID,
		"started_at": now,
		"updated_at": now,
	}

	err = r.store.UpdateFieldsWithStatus(ctx, taskID, constants.TaskStatusQueued, updates)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidTransition) {
			// Lost the race against a concurrent transition
			logger.DebugCtx(ctx, "start ack lost race, task_id: %s", taskID)
			return nil
		}
		return fmt.Errorf("failed to mark task started: %w", err)
	}

	logger.InfoCtx(ctx, "task running, task_id: %s, worker_id: %s", taskID, workerID)
	return nil
}

// applyAttempts bounds the read-then-CAS retry loop in Apply. A result only
// ever races against the start acknowledgment or a concurrent terminal write,
// so one re-read is normally enough.
const applyAttempts = 3

// Apply transitions a task into a terminal state from a worker result message.
// A result for an unknown task returns ErrTaskNotFound (a permanent
// inconsistency, logged by the caller, never retried). A result for an
// already-terminal task is absorbed silently. When the compare-and-swap write
// loses against a concurrent transition, the task is re-read and the result
// applied against the fresh status; a non-terminal race must never discard a
// terminal outcome.
func (r *Reconciler) Apply(ctx context.Context, msg *model.ResultMessage) error {
	ev, err := lifecycle.EventForResult(msg.Status, msg.TimedOut)
	if err != nil {
		return err
	}

	var task *model.Task
	var next constants.TaskStatus
	var now time.Time

	for attempt := 0; ; attempt++ {
		task, err = r.store.Get(ctx, msg.TaskID)
		if err != nil {
			return err
		}

		next, err = lifecycle.Apply(task.Status, ev)
		if err != nil {
			if task.Status.Terminal() {
				// Duplicate or late delivery; first terminal outcome stands
				logger.InfoCtx(ctx, "result for terminal task ignored, task_id: %s, status: %s", msg.TaskID, task.Status)
				return nil
			}
			return err
		}

		now = time.Now()
		updates := map[string]interface{}{
			"status":       next.String(),
			"worker_id":    msg.WorkerID,
			"completed_at": now,
			"updated_at":   now,
		}

		// result and error_message are mutually exclusive on terminal states
		if next == constants.TaskStatusCompleted {
			updates["result"] = msg.Result
			updates["error_message"] = ""
		} else {
			updates["error_message"] = msg.ErrorMessage
			updates["result"] = ""
		}

		// A result can arrive before the start acknowledgment was applied
		if task.StartedAt == nil {
			updates["started_at"] = now
		}

		err = r.store.UpdateFieldsWithStatus(ctx, msg.TaskID, task.Status, updates)
		if err == nil {
			break
		}
		if !errors.Is(err, errs.ErrInvalidTransition) {
			return fmt.Errorf("failed to apply result: %w", err)
		}
		if attempt+1 >= applyAttempts {
			// Hand the delivery back to the broker rather than drop the result
			return fmt.Errorf("result for task %s lost %d races: %w", msg.TaskID, applyAttempts, err)
		}
		logger.InfoCtx(ctx, "result lost race, retrying, task_id: %s, status: %s", msg.TaskID, task.Status)
	}

	logger.InfoCtx(ctx, "task reconciled, task_id: %s, status: %s, worker_id: %s, execution_ms: %d",
		msg.TaskID, next, msg.WorkerID, msg.ExecutionTimeMs)

	if task.WebhookURL != "" {
		updated := *task
		updated.Status = next
		updated.WorkerID = msg.WorkerID
		updated.CompletedAt = &now
		if next == constants.TaskStatusCompleted {
			updated.Result = msg.Result
		} else {
			updated.ErrorMessage = msg.ErrorMessage
		}
		go r.callWebhook(context.Background(), &updated)
	}

	return nil
}

// callWebhook posts the terminal task state to the submitter's callback URL
func (r *Reconciler) callWebhook(ctx context.Context, task *model.Task) {
	payload, err := json.Marshal(toTaskResponse(task))
	if err != nil {
		logger.ErrorCtx(ctx, "failed to marshal webhook payload, task_id: %s, error: %v", task.ID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.WebhookURL, bytes.NewBuffer(payload))
	if err != nil {
		logger.ErrorCtx(ctx, "failed to create webhook request, task_id: %s, error: %v", task.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "execq/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to call webhook, task_id: %s, url: %s, error: %v", task.ID, task.WebhookURL, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.InfoCtx(ctx, "webhook delivered, task_id: %s, status_code: %d", task.ID, resp.StatusCode)
	} else {
		logger.WarnCtx(ctx, "webhook returned non-2xx, task_id: %s, status_code: %d", task.ID, resp.StatusCode)
	}
}
