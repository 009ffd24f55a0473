package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"execq/internal/model"
	broker "execq/pkg/broker/asynq"
	"execq/pkg/config"
	"execq/pkg/constants"
	"execq/pkg/errs"
	"execq/pkg/logger"

	"github.com/hibiken/asynq"
)

// Runtime is one worker process: it claims dispatch messages from the broker,
// runs the executor under the task's deadline, and reports start and result to
// the coordinator. Heartbeats run on an independent timer, decoupled from job
// processing.
type Runtime struct {
	workerID string
	cfg      *config.Config
	broker   *broker.Manager
	executor Executor
	reporter Reporter

	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// NewRuntime creates a worker runtime
func NewRuntime(workerID string, cfg *config.Config, brokerMgr *broker.Manager, executor Executor, reporter Reporter) *Runtime {
	return &Runtime{
		workerID: workerID,
		cfg:      cfg,
		broker:   brokerMgr,
		executor: executor,
		reporter: reporter,
	}
}

// Start registers the dispatch handler, starts the claim loop, and begins
// heartbeating.
func (r *Runtime) Start() error {
	r.broker.RegisterHandler(broker.TypeTaskExecute, asynq.HandlerFunc(r.ProcessJob))

	if err := r.broker.Start(); err != nil {
		return fmt.Errorf("failed to start claim loop: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	r.hbCancel = cancel
	r.hbDone = make(chan struct{})
	go r.heartbeatLoop(hbCtx)

	logger.Infof("worker runtime started, worker_id: %s, type: %s", r.workerID, r.cfg.Worker.Type)
	return nil
}

// Stop stops claiming new dispatches, waits for the in-flight job, then stops
// the heartbeat timer. The in-flight job is not aborted; its own deadline
// governs that.
func (r *Runtime) Stop() {
	r.broker.Stop()
	if r.hbCancel != nil {
		r.hbCancel()
		<-r.hbDone
	}
	logger.Infof("worker runtime stopped, worker_id: %s", r.workerID)
}

// ProcessJob handles one claimed dispatch. Returning an error fails the
// attempt and engages the broker's retry/backoff machinery; returning nil
// acknowledges the dispatch.
func (r *Runtime) ProcessJob(ctx context.Context, t *asynq.Task) error {
	var payload model.DispatchPayload
	if err := payload.FromJSON(t.Payload()); err != nil {
		return r.failAttempt(ctx, payload.TaskID, 0, fmt.Errorf("malformed dispatch payload: %w", err))
	}

	if err := validatePayload(&payload); err != nil {
		// Report the validation failure as a result rather than dropping the
		// dispatch silently, then still fail the attempt
		return r.failAttempt(ctx, payload.TaskID, 0, err)
	}
	if payload.Timeout <= 0 {
		payload.Timeout = r.defaultTimeout()
	}

	if err := r.reporter.ReportStarted(ctx, payload.TaskID); err != nil {
		logger.WarnCtx(ctx, "start ack failed, task_id: %s, error: %v", payload.TaskID, err)
	}

	timeout := time.Duration(payload.Timeout) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := r.executor.Execute(execCtx, payload.Prompt, payload.Code)
	elapsed := time.Since(start)

	timedOut := execCtx.Err() == context.DeadlineExceeded

	if err != nil || timedOut {
		execErr := &errs.ExecutionError{
			Message: timeoutOrFailureMessage(err, result, timeout, timedOut),
			Timeout: timedOut,
		}
		return r.reportFailure(ctx, &payload, execErr, elapsed)
	}

	if result.ExitCode != 0 {
		execErr := &errs.ExecutionError{
			Message: fmt.Sprintf("executor exited with code %d: %s", result.ExitCode, result.Stderr),
		}
		return r.reportFailure(ctx, &payload, execErr, elapsed)
	}

	return r.reportSuccess(ctx, &payload, result.Stdout, elapsed)
}

func validatePayload(payload *model.DispatchPayload) error {
	if payload.TaskID == "" {
		return errors.New("dispatch missing task id")
	}
	if payload.Prompt == "" {
		return errors.New("dispatch missing prompt")
	}
	return nil
}

// defaultTimeout falls back for dispatches enqueued without a timeout.
func (r *Runtime) defaultTimeout() int {
	if r.cfg.Worker.DefaultTimeout > 0 {
		return r.cfg.Worker.DefaultTimeout
	}
	return 300
}

func timeoutOrFailureMessage(err error, result *ExecResult, timeout time.Duration, timedOut bool) string {
	if timedOut {
		return fmt.Sprintf("execution timed out after %v", timeout)
	}
	if result != nil && result.Stderr != "" {
		return fmt.Sprintf("%v: %s", err, result.Stderr)
	}
	return err.Error()
}

func (r *Runtime) reportSuccess(ctx context.Context, payload *model.DispatchPayload, stdout string, elapsed time.Duration) error {
	msg := &model.ResultMessage{
		TaskID:          payload.TaskID,
		WorkerID:        r.workerID,
		Status:          constants.ResultStatusCompleted,
		Result:          stdout,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}

	if err := r.reporter.ReportResult(ctx, msg); err != nil {
		// Without the result the coordinator would never close the lifecycle;
		// fail the attempt so the broker redelivers
		logger.ErrorCtx(ctx, "result report failed, task_id: %s, error: %v", payload.TaskID, err)
		return fmt.Errorf("failed to report result for %s: %w", payload.TaskID, err)
	}

	logger.InfoCtx(ctx, "job completed, task_id: %s, execution_ms: %d", payload.TaskID, msg.ExecutionTimeMs)
	return nil
}

func (r *Runtime) reportFailure(ctx context.Context, payload *model.DispatchPayload, execErr *errs.ExecutionError, elapsed time.Duration) error {
	msg := &model.ResultMessage{
		TaskID:          payload.TaskID,
		WorkerID:        r.workerID,
		Status:          constants.ResultStatusFailed,
		ErrorMessage:    execErr.Message,
		ExecutionTimeMs: elapsed.Milliseconds(),
		TimedOut:        execErr.Timeout,
	}

	if err := r.reporter.ReportResult(ctx, msg); err != nil {
		// Log and still propagate the original failure; detecting "no result
		// ever arrived" belongs to the coordinator's sweeps
		logger.ErrorCtx(ctx, "failure report failed, task_id: %s, error: %v", payload.TaskID, err)
	}

	logger.WarnCtx(ctx, "job failed, task_id: %s, timed_out: %v, error: %s", payload.TaskID, execErr.Timeout, execErr.Message)
	return fmt.Errorf("task %s failed: %w", payload.TaskID, execErr)
}

// failAttempt synthesizes a failure result for a dispatch that never reached
// the executor, then fails the attempt.
func (r *Runtime) failAttempt(ctx context.Context, taskID string, elapsed time.Duration, cause error) error {
	if taskID != "" {
		msg := &model.ResultMessage{
			TaskID:          taskID,
			WorkerID:        r.workerID,
			Status:          constants.ResultStatusFailed,
			ErrorMessage:    cause.Error(),
			ExecutionTimeMs: elapsed.Milliseconds(),
		}
		if err := r.reporter.ReportResult(ctx, msg); err != nil {
			logger.ErrorCtx(ctx, "validation failure report failed, task_id: %s, error: %v", taskID, err)
		}
	}
	return cause
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	defer close(r.hbDone)

	interval := time.Duration(r.cfg.Worker.HeartbeatInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First beat immediately so the worker shows up without waiting a tick
	r.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Runtime) beat(ctx context.Context) {
	if err := r.reporter.Heartbeat(ctx); err != nil && ctx.Err() == nil {
		logger.WarnCtx(ctx, "heartbeat failed, worker_id: %s, error: %v", r.workerID, err)
	}
}
