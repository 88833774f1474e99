package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	// Workers is the number of background goroutines.
	// Default: 4
	Workers int

	// QueueSize bounds the number of pending jobs. Submissions beyond it are dropped.
	// Default: 256
	QueueSize int

	// Timeout bounds each job.
	// Default: 5 seconds
	Timeout time.Duration

	Logger zerolog.Logger
}

// Job is a unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher runs best-effort background jobs on a bounded worker pool.
// Failed jobs are logged and never retried.
type Dispatcher struct {
	jobs    chan Job
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	d := &Dispatcher{
		jobs:    make(chan Job, cfg.QueueSize),
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work()
		}()
	}
	return d
}

// Submit enqueues job without blocking. It reports false if the job was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.jobs <- job:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn().Str("job", job.Name).Msg("background queue full, dropping job")
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}

// Stats returns current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) work() {
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := job.Run(ctx); err != nil {
		d.failed.Add(1)
		d.logger.Warn().Err(err).Str("job", job.Name).Msg("background job failed")
		return
	}
	d.completed.Add(1)
}
