package jobs

import (
	"context"
	"time"

	"execq/internal/service"
)

// RequeueSweep re-enqueues tasks that are still queued after their dispatch
// should have landed. Redelivery is deduplicated at the broker, so sweeping a
// task whose dispatch is merely slow is harmless.
type RequeueSweep struct {
	taskService *service.TaskService
	interval    time.Duration
	grace       time.Duration
}

func NewRequeueSweep(taskService *service.TaskService, interval, grace time.Duration) *RequeueSweep {
	return &RequeueSweep{
		taskService: taskService,
		interval:    interval,
		grace:       grace,
	}
}

func (j *RequeueSweep) Name() string {
	return "requeue_sweep"
}

func (j *RequeueSweep) Interval() time.Duration {
	return j.interval
}

func (j *RequeueSweep) Run(ctx context.Context) error {
	return j.taskService.RequeueStaleQueued(ctx, j.grace)
}
