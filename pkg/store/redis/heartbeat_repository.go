package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"execq/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	heartbeatKeyPrefix = "heartbeat:"        // Per-worker heartbeat record
	heartbeatSetKey    = "heartbeats:active" // Index of worker ids with recent heartbeats
)

// HeartbeatRepository stores worker heartbeats in Redis with TTL-based expiry.
// Records carry no task ownership; they are an observability signal only.
// It implements interfaces.HeartbeatRegistry.
type HeartbeatRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewHeartbeatRepository creates a heartbeat repository. ttl is the expiry
// threshold: records older than this vanish from List.
func NewHeartbeatRepository(redisClient *RedisClient, ttl time.Duration) *HeartbeatRepository {
	return &HeartbeatRepository{
		redis: redisClient.GetClient(),
		ttl:   ttl,
	}
}

// Heartbeat records a worker's liveness signal and refreshes its TTL
func (r *HeartbeatRepository) Heartbeat(ctx context.Context, workerID, workerType string) error {
	hb := &model.Heartbeat{
		WorkerID: workerID,
		Type:     workerType,
		LastSeen: time.Now(),
	}

	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	key := heartbeatKeyPrefix + workerID

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, key, data, r.ttl)
	pipe.SAdd(ctx, heartbeatSetKey, workerID)
	pipe.Expire(ctx, heartbeatSetKey, r.ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save heartbeat: %w", err)
	}
	return nil
}

// List returns all non-expired heartbeat records
func (r *HeartbeatRepository) List(ctx context.Context) ([]*model.Heartbeat, error) {
	workerIDs, err := r.redis.SMembers(ctx, heartbeatSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get heartbeat index: %w", err)
	}

	if len(workerIDs) == 0 {
		return []*model.Heartbeat{}, nil
	}

	// Batch fetch all records in one round-trip
	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(workerIDs))
	for _, workerID := range workerIDs {
		cmds = append(cmds, pipe.Get(ctx, heartbeatKeyPrefix+workerID))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch heartbeats: %w", err)
	}

	heartbeats := make([]*model.Heartbeat, 0, len(workerIDs))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Record expired; drop the stale index entry
			r.redis.SRem(ctx, heartbeatSetKey, workerIDs[i])
			continue
		}

		var hb model.Heartbeat
		if err := json.Unmarshal([]byte(data), &hb); err != nil {
			continue
		}
		heartbeats = append(heartbeats, &hb)
	}

	return heartbeats, nil
}
