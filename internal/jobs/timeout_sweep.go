package jobs

import (
	"context"
	"time"

	"execq/internal/service"
)

// TimeoutSweep closes out running tasks whose worker never reported a result.
// The per-task deadline plus a grace margin has to pass before a task is
// declared timed out, so a slow result report still wins the race.
type TimeoutSweep struct {
	taskService *service.TaskService
	interval    time.Duration
}

func NewTimeoutSweep(taskService *service.TaskService, interval time.Duration) *TimeoutSweep {
	return &TimeoutSweep{
		taskService: taskService,
		interval:    interval,
	}
}

func (j *TimeoutSweep) Name() string {
	return "timeout_sweep"
}

func (j *TimeoutSweep) Interval() time.Duration {
	return j.interval
}

func (j *TimeoutSweep) Run(ctx context.Context) error {
	return j.taskService.TimeoutRunning(ctx)
}
