package interfaces

import (
	"context"

	"execq/internal/model"
)

// Broker owns dispatch delivery: at-least-once, deduplicated per task id.
// It never owns task-state truth; terminal state is written only by the
// reconciler.
type Broker interface {
	// Enqueue appends a dispatch message keyed by the payload's task id.
	// Returns errs.ErrDuplicateDispatch while a dispatch for the same id is
	// pending or in flight, errs.ErrBrokerUnavailable when the transport
	// cannot be reached.
	Enqueue(ctx context.Context, payload *model.DispatchPayload) error

	// Stats returns a point-in-time snapshot of queue counters. Not
	// transactionally consistent with the task store.
	Stats(ctx context.Context) (*QueueStats, error)

	// ListDeadLetters returns dispatches that exhausted their retry budget.
	ListDeadLetters(ctx context.Context) ([]*DeadLetter, error)

	// RemoveDeadLetter drops a dead-lettered dispatch after it has been
	// bridged back to task state.
	RemoveDeadLetter(ctx context.Context, taskID string) error

	// Close closes the broker connection.
	Close() error
}

// QueueStats queue counter snapshot
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// DeadLetter a dispatch whose retries are exhausted
type DeadLetter struct {
	TaskID  string `json:"task_id"`
	LastErr string `json:"last_err"`
	Retried int    `json:"retried"`
}
