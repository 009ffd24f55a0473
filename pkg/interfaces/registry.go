package interfaces

import (
	"context"

	"execq/internal/model"
)

// HeartbeatRegistry stores ephemeral worker heartbeats with TTL-based expiry.
type HeartbeatRegistry interface {
	// Heartbeat records a worker's liveness signal and refreshes its TTL.
	Heartbeat(ctx context.Context, workerID, workerType string) error

	// List returns all non-expired heartbeat records.
	List(ctx context.Context) ([]*model.Heartbeat, error)
}
