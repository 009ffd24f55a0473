package jobs

import (
	"context"
	"sync"
	"time"

	"execq/pkg/logger"
)

// Job is a periodic background sweep.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Manager runs registered sweeps on their own tickers until stopped.
// Register all jobs before Start; registration after Start is ignored.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    []Job
	started bool
	wg      sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Register adds a job to the manager.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		logger.Warnf("job %s registered after start, ignored", job.Name())
		return
	}
	m.jobs = append(m.jobs, job)
}

// Start launches all registered jobs. Each job runs once immediately, then on
// its interval.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := m.jobs
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go func(job Job) {
			defer m.wg.Done()
			m.loop(job)
		}(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) loop(job Job) {
	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := job.Run(m.ctx); err != nil {
			logger.WarnCtx(m.ctx, "background job %s failed after %v: %v",
				job.Name(), time.Since(start).Round(time.Millisecond), err)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
