package service

import (
	"context"
	"testing"
	"time"

	"execq/pkg/config"
	"execq/pkg/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLiveness() config.LivenessConfig {
	return config.LivenessConfig{ActiveWithin: 15, IdleWithin: 30}
}

func TestWorkerList_DerivedStatus(t *testing.T) {
	registry := newFakeRegistry()
	svc := NewWorkerService(registry, testLiveness())
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, "w-active", "local"))
	require.NoError(t, svc.Heartbeat(ctx, "w-idle", "cloud"))
	require.NoError(t, svc.Heartbeat(ctx, "w-gone", "local"))

	registry.setLastSeen("w-idle", time.Now().Add(-20*time.Second))
	registry.setLastSeen("w-gone", time.Now().Add(-45*time.Second))

	workers, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)

	byID := make(map[string]constants.WorkerStatus)
	for _, w := range workers {
		byID[w.ID] = w.Status
	}
	assert.Equal(t, constants.WorkerStatusActive, byID["w-active"])
	assert.Equal(t, constants.WorkerStatusIdle, byID["w-idle"])
	_, present := byID["w-gone"]
	assert.False(t, present, "expired workers are excluded, not marked stale")
}

func TestWorkerList_BoundaryAges(t *testing.T) {
	registry := newFakeRegistry()
	svc := NewWorkerService(registry, testLiveness())
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, "w-edge", "local"))

	// Just under the idle threshold: still listed
	registry.setLastSeen("w-edge", time.Now().Add(-29*time.Second))
	workers, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, constants.WorkerStatusIdle, workers[0].Status)

	// At the expiry threshold: gone
	registry.setLastSeen("w-edge", time.Now().Add(-31*time.Second))
	workers, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)
}

func TestWorkerList_RecomputedEveryQuery(t *testing.T) {
	registry := newFakeRegistry()
	svc := NewWorkerService(registry, testLiveness())
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, "w1", "local"))

	workers, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, constants.WorkerStatusActive, workers[0].Status)

	// Same record, older age: derivation changes with no write in between
	registry.setLastSeen("w1", time.Now().Add(-20*time.Second))
	workers, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, constants.WorkerStatusIdle, workers[0].Status)
}

func TestHeartbeat_DefaultsWorkerType(t *testing.T) {
	registry := newFakeRegistry()
	svc := NewWorkerService(registry, testLiveness())

	require.NoError(t, svc.Heartbeat(context.Background(), "w1", ""))

	heartbeats, err := registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, heartbeats, 1)
	assert.Equal(t, constants.WorkerTypeLocal, heartbeats[0].Type)
}
