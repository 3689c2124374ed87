package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"main/internal/engine"
	"main/internal/queue"
)

const defaultWorkerCount = 10

// Pool is a bounded-concurrency consumer. Each worker pulls one job at a
// time and drives a full engine run before its slot frees up; the outcome,
// success or failure, is always reported back so queue retry accounting
// stays in sync with persisted order state.
type Pool struct {
	queue   *queue.Queue
	engine  *engine.Engine
	workers int

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a pool; workerCount <= 0 falls back to the default of 10.
func New(q *queue.Queue, e *engine.Engine, workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	return &Pool{queue: q, engine: e, workers: workerCount}
}

// Run starts the workers. It is a no-op when already running.
func (p *Pool) Run(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	logs.Infof("worker pool started with %d workers", p.workers)
	for range p.workers {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		job, ok := p.queue.Next(ctx)
		if !ok {
			return
		}
		err := p.engine.Run(ctx, job)
		if err != nil {
			logs.Errorf("order %s attempt %d/%d: %v", job.OrderID, job.Attempt, job.MaxAttempts, err)
		}
		p.queue.Report(job, err)
	}
}
