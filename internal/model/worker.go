package model

import (
	"time"

	"execq/pkg/constants"
)

// Heartbeat is the ephemeral liveness record a worker pushes periodically.
// It carries no task ownership; it is an observability signal only.
type Heartbeat struct {
	WorkerID string    `json:"worker_id"`
	Type     string    `json:"type"` // local, cloud
	LastSeen time.Time `json:"last_seen"`
}

// Worker is the read-side view of a worker: identity plus a status derived
// from heartbeat age at query time. Never persisted.
type Worker struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Status        constants.WorkerStatus `json:"status"`
	LastHeartbeat time.Time              `json:"last_heartbeat"`
}
