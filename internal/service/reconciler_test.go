package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"execq/internal/model"
	"execq/pkg/constants"
	"execq/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// raceStore delegates to a fakeStore and fires afterGet once, after the first
// Get returns, so a test can interleave a concurrent transition between a
// read and the compare-and-swap write that follows it.
type raceStore struct {
	*fakeStore
	hookMu   sync.Mutex
	afterGet func()
}

func (s *raceStore) Get(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.fakeStore.Get(ctx, taskID)
	s.hookMu.Lock()
	hook := s.afterGet
	s.afterGet = nil
	s.hookMu.Unlock()
	if hook != nil {
		hook()
	}
	return task, err
}

// stuckStore rejects every compare-and-swap write, simulating a status that
// keeps moving under the reconciler.
type stuckStore struct {
	*fakeStore
	casCalls int
}

func (s *stuckStore) UpdateFieldsWithStatus(ctx context.Context, taskID string, expected constants.TaskStatus, updates map[string]interface{}) error {
	s.casCalls++
	return fmt.Errorf("%w: task_id=%s", errs.ErrInvalidTransition, taskID)
}

func queuedTask(store *fakeStore, id string) *model.Task {
	task := &model.Task{
		ID:        id,
		Status:    constants.TaskStatusQueued,
		Prompt:    "echo hi",
		Timeout:   5,
		CreatedAt: time.Now().Add(-time.Minute),
		UpdatedAt: time.Now().Add(-time.Minute),
	}
	_ = store.Create(context.Background(), task)
	return task
}

func TestMarkStarted_SetsStartedAtOnce(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")

	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusRunning, task.Status)
	assert.Equal(t, "worker-1", task.WorkerID)
	require.NotNil(t, task.StartedAt)
	assert.True(t, !task.StartedAt.Before(task.CreatedAt), "startedAt must be >= createdAt")

	first := *task.StartedAt

	// Redelivered acknowledgment must not move startedAt or change the worker
	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-2"))

	task, err = store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first, *task.StartedAt)
	assert.Equal(t, "worker-1", task.WorkerID)
}

func TestMarkStarted_UnknownTask(t *testing.T) {
	rec := NewReconciler(newFakeStore())
	err := rec.MarkStarted(context.Background(), "missing", "worker-1")
	assert.ErrorIs(t, err, errs.ErrTaskNotFound)
}

func TestApply_CompletedResult(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")
	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))

	msg := &model.ResultMessage{
		TaskID:          "t1",
		WorkerID:        "worker-1",
		Status:          constants.ResultStatusCompleted,
		Result:          "hi\n",
		ExecutionTimeMs: 12,
	}
	require.NoError(t, rec.Apply(ctx, msg))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusCompleted, task.Status)
	assert.Equal(t, "hi\n", task.Result)
	assert.Empty(t, task.ErrorMessage)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, !task.CompletedAt.Before(*task.StartedAt), "completedAt must be >= startedAt")
}

func TestApply_FailedResult(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")
	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))

	msg := &model.ResultMessage{
		TaskID:       "t1",
		WorkerID:     "worker-1",
		Status:       constants.ResultStatusFailed,
		ErrorMessage: "exit status 2",
	}
	require.NoError(t, rec.Apply(ctx, msg))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusFailed, task.Status)
	assert.Equal(t, "exit status 2", task.ErrorMessage)
	assert.Empty(t, task.Result)
}

func TestApply_TimeoutPromotedToTimeoutStatus(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")
	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))

	msg := &model.ResultMessage{
		TaskID:          "t1",
		WorkerID:        "worker-1",
		Status:          constants.ResultStatusFailed,
		ErrorMessage:    "execution timed out after 1s",
		ExecutionTimeMs: 1050,
		TimedOut:        true,
	}
	require.NoError(t, rec.Apply(ctx, msg))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusTimeout, task.Status)
	assert.Contains(t, task.ErrorMessage, "timed out")
}

func TestApply_DuplicateDeliveryIsNoOp(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")
	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))

	first := &model.ResultMessage{
		TaskID:   "t1",
		WorkerID: "worker-1",
		Status:   constants.ResultStatusCompleted,
		Result:   "hi",
	}
	require.NoError(t, rec.Apply(ctx, first))

	task, _ := store.Get(ctx, "t1")
	completedAt := *task.CompletedAt

	// A differing redelivery must not flip status, outputs, or timestamps
	second := &model.ResultMessage{
		TaskID:       "t1",
		WorkerID:     "worker-9",
		Status:       constants.ResultStatusFailed,
		ErrorMessage: "boom",
	}
	require.NoError(t, rec.Apply(ctx, second))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusCompleted, task.Status)
	assert.Equal(t, "hi", task.Result)
	assert.Empty(t, task.ErrorMessage)
	assert.Equal(t, "worker-1", task.WorkerID)
	assert.Equal(t, completedAt, *task.CompletedAt)
}

func TestApply_ResultBeforeStartAck(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")

	msg := &model.ResultMessage{
		TaskID:   "t1",
		WorkerID: "worker-1",
		Status:   constants.ResultStatusCompleted,
		Result:   "fast",
	}
	require.NoError(t, rec.Apply(ctx, msg))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, !task.CompletedAt.Before(*task.StartedAt))

	// The late acknowledgment is absorbed
	require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))
	after, _ := store.Get(ctx, "t1")
	assert.Equal(t, constants.TaskStatusCompleted, after.Status)
}

func TestApply_RetriesAfterLosingRaceToStartAck(t *testing.T) {
	base := newFakeStore()
	store := &raceStore{fakeStore: base}
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(base, "t1")

	// The start acknowledgment lands between Apply's read and its write, so
	// the first compare-and-swap sees RUNNING where QUEUED was expected
	store.afterGet = func() {
		require.NoError(t, rec.MarkStarted(ctx, "t1", "worker-1"))
	}

	msg := &model.ResultMessage{
		TaskID:   "t1",
		WorkerID: "worker-1",
		Status:   constants.ResultStatusCompleted,
		Result:   "hi",
	}
	require.NoError(t, rec.Apply(ctx, msg))

	task, err := base.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusCompleted, task.Status)
	assert.Equal(t, "hi", task.Result)
	assert.Equal(t, "worker-1", task.WorkerID)
	require.NotNil(t, task.CompletedAt)
}

func TestApply_ErrorsAfterExhaustingRetries(t *testing.T) {
	base := newFakeStore()
	store := &stuckStore{fakeStore: base}
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(base, "t1")

	msg := &model.ResultMessage{
		TaskID:   "t1",
		WorkerID: "worker-1",
		Status:   constants.ResultStatusCompleted,
		Result:   "hi",
	}

	// The delivery must go back to the broker instead of being dropped
	err := rec.Apply(ctx, msg)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Equal(t, applyAttempts, store.casCalls)

	task, getErr := base.Get(ctx, "t1")
	require.NoError(t, getErr)
	assert.Equal(t, constants.TaskStatusQueued, task.Status)
}

func TestConcurrentTasksReachCompleted(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")
	queuedTask(store, "t2")

	// Two worker slots drive two distinct tasks through their full
	// lifecycle at the same time
	var wg sync.WaitGroup
	run := func(taskID, workerID, output string) {
		defer wg.Done()
		assert.NoError(t, rec.MarkStarted(ctx, taskID, workerID))
		assert.NoError(t, rec.Apply(ctx, &model.ResultMessage{
			TaskID:   taskID,
			WorkerID: workerID,
			Status:   constants.ResultStatusCompleted,
			Result:   output,
		}))
	}
	wg.Add(2)
	go run("t1", "worker-1", "out-1")
	go run("t2", "worker-2", "out-2")
	wg.Wait()

	for _, tc := range []struct{ taskID, workerID, result string }{
		{"t1", "worker-1", "out-1"},
		{"t2", "worker-2", "out-2"},
	} {
		task, err := store.Get(ctx, tc.taskID)
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusCompleted, task.Status)
		assert.Equal(t, tc.workerID, task.WorkerID)
		assert.Equal(t, tc.result, task.Result)
		require.NotNil(t, task.StartedAt)
		require.NotNil(t, task.CompletedAt)
	}
}

func TestMarkStarted_ConcurrentClaimsSingleWinner(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	queuedTask(store, "t1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, rec.MarkStarted(ctx, "t1", fmt.Sprintf("worker-%d", i)))
		}(i)
	}
	wg.Wait()

	// Exactly one acknowledgment won; the rest were absorbed as no-ops
	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, constants.TaskStatusRunning, task.Status)
	assert.Regexp(t, `^worker-\d$`, task.WorkerID)
	require.NotNil(t, task.StartedAt)
}

func TestApply_UnknownTask(t *testing.T) {
	rec := NewReconciler(newFakeStore())

	msg := &model.ResultMessage{
		TaskID: "missing",
		Status: constants.ResultStatusCompleted,
	}
	err := rec.Apply(context.Background(), msg)
	assert.ErrorIs(t, err, errs.ErrTaskNotFound)
}
