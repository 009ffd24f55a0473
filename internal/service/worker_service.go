package service

import (
	"context"
	"sort"
	"time"

	"execq/internal/model"
	"execq/pkg/config"
	"execq/pkg/constants"
	"execq/pkg/interfaces"
)

// WorkerService derives worker status from heartbeat age on every query.
// Nothing here is cached or persisted: a worker is a heartbeat record plus a
// pure function of its age.
type WorkerService struct {
	registry interfaces.HeartbeatRegistry
	liveness config.LivenessConfig
}

// NewWorkerService creates a worker service
func NewWorkerService(registry interfaces.HeartbeatRegistry, liveness config.LivenessConfig) *WorkerService {
	return &WorkerService{
		registry: registry,
		liveness: liveness,
	}
}

// Heartbeat records a worker liveness signal
func (s *WorkerService) Heartbeat(ctx context.Context, workerID, workerType string) error {
	if workerType == "" {
		workerType = constants.WorkerTypeLocal
	}
	return s.registry.Heartbeat(ctx, workerID, workerType)
}

// List returns workers with status derived from heartbeat age. Workers whose
// last heartbeat is at or beyond the expiry threshold are excluded entirely.
func (s *WorkerService) List(ctx context.Context) ([]*model.Worker, error) {
	heartbeats, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	workers := make([]*model.Worker, 0, len(heartbeats))
	for _, hb := range heartbeats {
		status, ok := s.deriveStatus(now.Sub(hb.LastSeen))
		if !ok {
			continue
		}
		workers = append(workers, &model.Worker{
			ID:            hb.WorkerID,
			Type:          hb.Type,
			Status:        status,
			LastHeartbeat: hb.LastSeen,
		})
	}

	sort.Slice(workers, func(i, j int) bool {
		return workers[i].ID < workers[j].ID
	})
	return workers, nil
}

// deriveStatus maps heartbeat age to a worker status. The second return is
// false when the worker should be treated as gone.
func (s *WorkerService) deriveStatus(age time.Duration) (constants.WorkerStatus, bool) {
	switch {
	case age < s.liveness.ActiveThreshold():
		return constants.WorkerStatusActive, true
	case age < s.liveness.ExpiryThreshold():
		return constants.WorkerStatusIdle, true
	default:
		return "", false
	}
}
