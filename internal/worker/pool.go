// Package worker runs background jobs on a fixed set of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"lessonscope/internal/metrics"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("worker queue full")
	// ErrClosed is returned by Submit after Shutdown has begun.
	ErrClosed = errors.New("worker pool closed")
)

// Job is one unit of background work. The context is cancelled only when
// Shutdown gives up waiting.
type Job func(ctx context.Context)

// Config controls the concurrency characteristics of the pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Pool executes submitted jobs. Submit never blocks.
type Pool struct {
	logger *slog.Logger
	jobs   chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts cfg.Workers goroutines.
func New(cfg Config, logger *slog.Logger) *Pool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: logger,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues job or reports why it could not.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		metrics.PipelineQueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, running jobs see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.PipelineQueueDepth.Set(float64(len(p.jobs)))
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", "panic", r)
		}
	}()
	job(p.ctx)
}
