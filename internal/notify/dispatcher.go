// Package notify runs fire-and-forget side effects (push notifications,
// emails) on a bounded worker pool. Callers never wait on delivery and never
// see its errors; outcomes are only logged.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a detached unit of work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher executes jobs on a fixed set of workers.
type Dispatcher struct {
	logger  zerolog.Logger
	timeout time.Duration
	jobs    chan Job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize
// jobs. Each job runs with its own timeout.
func NewDispatcher(logger zerolog.Logger, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Dispatcher{
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		timeout: timeout,
		jobs:    make(chan Job, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues fn without blocking. It reports false when the queue is
// full or the dispatcher is closed; the job is then dropped.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn().Str("job", name).Msg("dispatcher closed, job dropped")
		return false
	}

	select {
	case d.jobs <- Job{Name: name, Run: fn}:
		return true
	default:
		d.logger.Warn().Str("job", name).Msg("queue full, job dropped")
		return false
	}
}

// Close stops accepting jobs and waits for queued jobs to finish.
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

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("job", job.Name).Interface("panic", r).Msg("job panicked")
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		d.logger.Error().Err(err).Str("job", job.Name).Dur("latency", time.Since(start)).Msg("job failed")
		return
	}
	d.logger.Debug().Str("job", job.Name).Dur("latency", time.Since(start)).Msg("job done")
}
