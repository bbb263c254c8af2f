// Package jobs runs fire-and-forget work on a bounded goroutine pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
var ErrQueueFull = errors.New("queue full")

// ErrNotRunning is returned when enqueueing before Start or after Stop.
var ErrNotRunning = errors.New("queue not running")

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff step; each retry doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// AttemptTimeout bounds a single handler call.
	AttemptTimeout time.Duration
	// DrainTimeout bounds how long Stop keeps processing buffered jobs.
	DrainTimeout time.Duration
	// OnDrop is called for jobs that exhausted their retries.
	OnDrop func(Job, error)
	Logger *zap.Logger
}

// Queue is an in-memory job dispatcher backed by goroutines. Failed jobs are
// retried with exponential backoff; Stop drains what is already buffered.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retries sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.ctx != nil {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			q.Stop()
		}()
	}
}

// Stop rejects new jobs, processes the buffered ones for up to DrainTimeout,
// then cancels the workers and pending retries.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		for len(q.jobs) > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(q.cfg.DrainTimeout):
		q.logger.Warn("queue drain timed out", zap.Int("pending", len(q.jobs)))
	}

	q.cancel()
	q.wg.Wait()
	q.retries.Wait()
	q.logger.Info("queue stopped")
}

// Len reports the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Enqueue pushes a job, waiting for buffer space until ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if err := q.admit(&job); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s: %w", q.name, ctx.Err())
	case <-q.ctx.Done():
		return fmt.Errorf("queue %s: %w", q.name, ErrNotRunning)
	case q.jobs <- job:
		return nil
	}
}

// TryEnqueue pushes a job without blocking the caller.
func (q *Queue) TryEnqueue(job Job) error {
	if err := q.admit(&job); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) admit(job *Job) error {
	q.mu.RLock()
	running := q.running
	q.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue %s: %w", q.name, ErrNotRunning)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.AttemptTimeout)
	err := q.handler(ctx, job)
	cancel()
	if err != nil {
		q.handleFailure(job, err)
	}
}

// backoff returns the delay before retry number attempt (1-based).
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return delay
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	}
	if job.Attempt > q.cfg.MaxRetries {
		q.logger.Error("job exceeded retries", fields...)
		if q.cfg.OnDrop != nil {
			q.cfg.OnDrop(job, err)
		}
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("delay", delay))...)

	q.retries.Add(1)
	go func(j Job) {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			if q.cfg.OnDrop != nil {
				q.cfg.OnDrop(j, q.ctx.Err())
			}
		case <-timer.C:
			// Retries bypass admission so they still run while draining.
			select {
			case q.jobs <- j:
			case <-q.ctx.Done():
			}
		}
	}(job)
}
