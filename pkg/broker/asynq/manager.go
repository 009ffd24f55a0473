package asynq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"execq/internal/model"
	"execq/pkg/config"
	"execq/pkg/errs"
	"execq/pkg/interfaces"
	"execq/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	// TypeTaskExecute dispatch message type
	TypeTaskExecute = "task:execute"

	queueName = "default"
)

// Manager is the broker adapter over asynq/Redis. It owns delivery: at-least-
// once dispatch, deduplicated per task id, bounded retries with exponential
// backoff, and an archived (dead-letter) bucket for exhausted dispatches. It
// never writes task state.
type Manager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	server    *asynq.Server
	mux       *asynq.ServeMux
	cfg       *config.Config
}

// NewManager creates a broker manager. The processing server is only started
// by worker processes through RegisterHandler/Start.
func NewManager(cfg *config.Config) *Manager {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	base := time.Duration(cfg.Queue.RetryBaseDelay) * time.Second
	maxDelay := time.Duration(cfg.Queue.RetryMaxDelay) * time.Second

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				queueName: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return backoffDelay(n, base, maxDelay)
			},
		},
	)

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		cfg:       cfg,
	}
}

// backoffDelay returns base * 2^(n-1) capped at max, where n is the attempt
// number starting at 1.
func backoffDelay(n int, base, max time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := base
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Enqueue appends a dispatch message keyed by the payload's task id. A second
// enqueue for the same id while one is pending or in flight returns
// ErrDuplicateDispatch; transport failure returns ErrBrokerUnavailable.
func (m *Manager) Enqueue(ctx context.Context, payload *model.DispatchPayload) error {
	data, err := payload.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}

	task := asynq.NewTask(TypeTaskExecute, data)

	opts := []asynq.Option{
		asynq.TaskID(payload.TaskID),
		asynq.Queue(queueName),
		asynq.MaxRetry(m.cfg.Queue.MaxRetry),
		// The broker visibility timeout is a safety net behind the task's own
		// deadline, so give the executor headroom to report first.
		asynq.Timeout(time.Duration(payload.Timeout)*time.Second + 30*time.Second),
		asynq.Retention(time.Duration(m.cfg.Queue.RetentionPeriod) * time.Second),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("%w: %s", errs.ErrDuplicateDispatch, payload.TaskID)
		}
		return fmt.Errorf("%w: %v", errs.ErrBrokerUnavailable, err)
	}

	logger.InfoCtx(ctx, "dispatch enqueued, task_id: %s, queue: %s", payload.TaskID, info.Queue)
	return nil
}

// Stats returns a point-in-time snapshot of queue counters
func (m *Manager) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	info, err := m.inspector.GetQueueInfo(queueName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBrokerUnavailable, err)
	}

	return &interfaces.QueueStats{
		Waiting:   info.Pending,
		Active:    info.Active,
		Completed: info.Completed,
		Failed:    info.Failed,
		Delayed:   info.Scheduled + info.Retry,
	}, nil
}

// ListDeadLetters returns dispatches that exhausted their retry budget
func (m *Manager) ListDeadLetters(ctx context.Context) ([]*interfaces.DeadLetter, error) {
	infos, err := m.inspector.ListArchivedTasks(queueName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBrokerUnavailable, err)
	}

	letters := make([]*interfaces.DeadLetter, 0, len(infos))
	for _, info := range infos {
		letters = append(letters, &interfaces.DeadLetter{
			TaskID:  info.ID,
			LastErr: info.LastErr,
			Retried: info.Retried,
		})
	}
	return letters, nil
}

// RemoveDeadLetter drops an archived dispatch once it has been bridged back
// to task state
func (m *Manager) RemoveDeadLetter(ctx context.Context, taskID string) error {
	if err := m.inspector.DeleteTask(queueName, taskID); err != nil {
		return fmt.Errorf("failed to remove dead letter %s: %w", taskID, err)
	}
	return nil
}

// RegisterHandler registers a dispatch handler (worker side)
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Start starts the processing server (worker side). The server's internal
// dequeue is the claim operation: an unacknowledged message is handed to at
// most one handler invocation at a time.
func (m *Manager) Start() error {
	logger.Infof("starting dispatch server, concurrency: %d", m.cfg.Queue.Concurrency)
	return m.server.Start(m.mux)
}

// Stop stops claiming new dispatches and waits for in-flight handlers
func (m *Manager) Stop() {
	logger.Infof("stopping dispatch server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes the enqueue client and inspector
func (m *Manager) Close() error {
	if err := m.inspector.Close(); err != nil {
		m.client.Close()
		return err
	}
	return m.client.Close()
}
