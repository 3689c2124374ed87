package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/obs"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrQueueClosed = errors.New("job queue closed")
)

const (
	defaultCapacity    = 256
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 60 * time.Second
)

// Job is a queue entry referencing exactly one order.
type Job struct {
	OrderID     string
	Attempt     int
	MaxAttempts int
}

// Final reports whether the job is on its last allowed attempt.
func (j Job) Final() bool {
	return j.Attempt >= j.MaxAttempts
}

// Config controls queue capacity and retry policy.
type Config struct {
	Capacity    int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Metrics     *obs.Metrics
}

// Queue is an at-least-once job queue with per-job exponential backoff.
// A job instance is only ever handed to a single consumer at a time; retry
// copies are re-enqueued after the backoff delay with the attempt counter
// incremented. New jobs are rejected when the queue is full, but a retry
// is never dropped: it blocks until a consumer frees a slot, so every
// accepted job runs to success or attempt exhaustion.
type Queue struct {
	cfg    Config
	ch     chan Job
	done   chan struct{}
	closed uint32
}

// New allocates a queue, applying defaults for zero config values.
func New(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &Queue{cfg: cfg, ch: make(chan Job, cfg.Capacity), done: make(chan struct{})}
}

// Enqueue adds a first-attempt job for the order without blocking.
func (q *Queue) Enqueue(orderID string) error {
	return q.push(Job{OrderID: orderID, Attempt: 1, MaxAttempts: q.cfg.MaxAttempts})
}

// Next blocks until a job is available or the context is done.
// The returned bool is false when no job was dequeued.
func (q *Queue) Next(ctx context.Context) (Job, bool) {
	select {
	case <-ctx.Done():
		return Job{}, false
	case job := <-q.ch:
		return job, true
	}
}

// Report settles the outcome of a dequeued job. A nil error removes the
// job. A retryable error re-enqueues it after backoff unless the attempt
// budget is exhausted; permanent errors remove it immediately.
func (q *Queue) Report(job Job, err error) {
	if err == nil {
		q.cfg.Metrics.JobCompleted()
		return
	}
	if IsPermanent(err) {
		logs.Warnf("job for order %s permanently failed: %v", job.OrderID, err)
		q.cfg.Metrics.JobDead()
		return
	}
	if job.Final() {
		logs.Warnf("job for order %s exhausted %d attempts: %v", job.OrderID, job.MaxAttempts, err)
		q.cfg.Metrics.JobDead()
		return
	}

	next := Job{OrderID: job.OrderID, Attempt: job.Attempt + 1, MaxAttempts: job.MaxAttempts}
	delay := q.Backoff(job.Attempt)
	q.cfg.Metrics.JobRetried()
	time.AfterFunc(delay, func() {
		q.requeue(next)
	})
}

// requeue hands a retry back to the channel. Unlike Enqueue it blocks on a
// full queue: dropping a retry would strand the order non-terminal with no
// failed state ever persisted. Only a closed queue abandons the retry.
func (q *Queue) requeue(job Job) {
	if atomic.LoadUint32(&q.closed) != 0 {
		logs.Warnf("queue closed, dropping retry for order %s attempt %d", job.OrderID, job.Attempt)
		q.cfg.Metrics.JobDead()
		return
	}
	select {
	case q.ch <- job:
	case <-q.done:
		logs.Warnf("queue closed, dropping retry for order %s attempt %d", job.OrderID, job.Attempt)
		q.cfg.Metrics.JobDead()
	}
}

// Backoff returns the delay before the given attempt is retried.
// The base delay doubles per attempt: 1x, 2x, 4x.
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return q.cfg.BaseDelay
	}
	if attempt > 30 {
		return q.cfg.MaxDelay
	}
	delay := q.cfg.BaseDelay * time.Duration(1<<(attempt-1))
	if delay > q.cfg.MaxDelay {
		return q.cfg.MaxDelay
	}
	return delay
}

// Close stops the queue from accepting new jobs and releases any retry
// blocked on a full channel. Jobs still waiting on a backoff timer are
// dropped when they fire.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.done)
	}
}

func (q *Queue) push(job Job) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		if job.Attempt == 1 {
			q.cfg.Metrics.JobEnqueued()
		}
		return nil
	default:
		return ErrQueueFull
	}
}
