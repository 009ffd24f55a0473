package jobs

import (
	"context"
	"time"

	"execq/internal/service"
)

// DeadLetterSweep drains dispatches that exhausted their retries and records
// a failure result for each, so no task stays queued forever.
type DeadLetterSweep struct {
	taskService *service.TaskService
	interval    time.Duration
}

func NewDeadLetterSweep(taskService *service.TaskService, interval time.Duration) *DeadLetterSweep {
	return &DeadLetterSweep{
		taskService: taskService,
		interval:    interval,
	}
}

func (j *DeadLetterSweep) Name() string {
	return "deadletter_sweep"
}

func (j *DeadLetterSweep) Interval() time.Duration {
	return j.interval
}

func (j *DeadLetterSweep) Run(ctx context.Context) error {
	return j.taskService.BridgeDeadLetters(ctx)
}
