package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, ttl time.Duration) (*HeartbeatRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return &HeartbeatRepository{redis: client, ttl: ttl}, mr
}

func TestHeartbeatRepository_SaveAndList(t *testing.T) {
	repo, _ := newTestRepository(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, repo.Heartbeat(ctx, "worker-1", "local"))
	require.NoError(t, repo.Heartbeat(ctx, "worker-2", "cloud"))

	heartbeats, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, heartbeats, 2)

	byID := make(map[string]string)
	for _, hb := range heartbeats {
		byID[hb.WorkerID] = hb.Type
		assert.WithinDuration(t, time.Now(), hb.LastSeen, 5*time.Second)
	}
	assert.Equal(t, "local", byID["worker-1"])
	assert.Equal(t, "cloud", byID["worker-2"])
}

func TestHeartbeatRepository_RefreshOverwrites(t *testing.T) {
	repo, _ := newTestRepository(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, repo.Heartbeat(ctx, "worker-1", "local"))
	require.NoError(t, repo.Heartbeat(ctx, "worker-1", "local"))

	heartbeats, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, heartbeats, 1)
}

func TestHeartbeatRepository_ExpiredRecordsVanish(t *testing.T) {
	repo, mr := newTestRepository(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, repo.Heartbeat(ctx, "worker-1", "local"))
	require.NoError(t, repo.Heartbeat(ctx, "worker-2", "local"))

	// Advance past the TTL so worker records expire
	mr.FastForward(31 * time.Second)
	require.NoError(t, repo.Heartbeat(ctx, "worker-2", "local"))

	heartbeats, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, heartbeats, 1)
	assert.Equal(t, "worker-2", heartbeats[0].WorkerID)
}

func TestHeartbeatRepository_EmptyList(t *testing.T) {
	repo, _ := newTestRepository(t, 30*time.Second)

	heartbeats, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, heartbeats)
}
