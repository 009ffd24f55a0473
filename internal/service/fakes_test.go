package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"execq/internal/model"
	"execq/pkg/constants"
	"execq/pkg/errs"
	"execq/pkg/interfaces"
)

// fakeStore is an in-memory TaskStore with the same compare-and-swap
// semantics as the MySQL repository.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*model.Task)}
}

func (s *fakeStore) Create(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *fakeStore) Get(ctx context.Context, taskID string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrTaskNotFound, taskID)
	}
	cp := *task
	return &cp, nil
}

func (s *fakeStore) UpdateFields(ctx context.Context, taskID string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrTaskNotFound, taskID)
	}
	applyUpdates(task, updates)
	return nil
}

func (s *fakeStore) UpdateFieldsWithStatus(ctx context.Context, taskID string, expected constants.TaskStatus, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok || task.Status != expected {
		return fmt.Errorf("%w: task_id=%s expected=%s", errs.ErrInvalidTransition, taskID, expected)
	}
	applyUpdates(task, updates)
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrTaskNotFound, taskID)
	}
	if !task.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", errs.ErrTaskNotTerminal, taskID, task.Status)
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *fakeStore) CountByStatus(ctx context.Context) (map[constants.TaskStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[constants.TaskStatus]int64)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts, nil
}

func (s *fakeStore) List(ctx context.Context, status constants.TaskStatus, limit, offset int) ([]*model.Task, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, task := range s.tasks {
		if status == "" || task.Status == status {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, task := range s.tasks {
		if task.Status == constants.TaskStatusQueued && task.UpdatedAt.Before(cutoff) {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListRunning(ctx context.Context) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, task := range s.tasks {
		if task.Status == constants.TaskStatusRunning {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func applyUpdates(task *model.Task, updates map[string]interface{}) {
	for col, val := range updates {
		switch col {
		case "status":
			task.Status = constants.TaskStatus(val.(string))
		case "worker_id":
			task.WorkerID = val.(string)
		case "result":
			task.Result = val.(string)
		case "error_message":
			task.ErrorMessage = val.(string)
		case "started_at":
			t := val.(time.Time)
			task.StartedAt = &t
		case "completed_at":
			t := val.(time.Time)
			task.CompletedAt = &t
		case "updated_at":
			task.UpdatedAt = val.(time.Time)
		}
	}
}

// fakeBroker records enqueued payloads and can simulate transport failure and
// per-task-id dedup.
type fakeBroker struct {
	mu          sync.Mutex
	enqueued    []*model.DispatchPayload
	pending     map[string]bool
	enqueueErr  error
	deadLetters []*interfaces.DeadLetter
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{pending: make(map[string]bool)}
}

func (b *fakeBroker) Enqueue(ctx context.Context, payload *model.DispatchPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	if b.pending[payload.TaskID] {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateDispatch, payload.TaskID)
	}
	b.pending[payload.TaskID] = true
	b.enqueued = append(b.enqueued, payload)
	return nil
}

func (b *fakeBroker) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &interfaces.QueueStats{Waiting: len(b.pending)}, nil
}

func (b *fakeBroker) ListDeadLetters(ctx context.Context) ([]*interfaces.DeadLetter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*interfaces.DeadLetter(nil), b.deadLetters...), nil
}

func (b *fakeBroker) RemoveDeadLetter(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.deadLetters[:0]
	for _, dl := range b.deadLetters {
		if dl.TaskID != taskID {
			kept = append(kept, dl)
		}
	}
	b.deadLetters = kept
	return nil
}

func (b *fakeBroker) Close() error { return nil }

// fakeRegistry is an in-memory heartbeat registry without TTL expiry; tests
// control ages through the LastSeen timestamps directly.
type fakeRegistry struct {
	mu         sync.Mutex
	heartbeats map[string]*model.Heartbeat
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{heartbeats: make(map[string]*model.Heartbeat)}
}

func (r *fakeRegistry) Heartbeat(ctx context.Context, workerID, workerType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats[workerID] = &model.Heartbeat{
		WorkerID: workerID,
		Type:     workerType,
		LastSeen: time.Now(),
	}
	return nil
}

func (r *fakeRegistry) List(ctx context.Context) ([]*model.Heartbeat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Heartbeat, 0, len(r.heartbeats))
	for _, hb := range r.heartbeats {
		cp := *hb
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRegistry) setLastSeen(workerID string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hb, ok := r.heartbeats[workerID]; ok {
		hb.LastSeen = t
	}
}
