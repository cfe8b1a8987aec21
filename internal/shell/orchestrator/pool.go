package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// job is a unit of work for the pool. ctx is cancelled when the pool stops.
type job func(ctx context.Context)

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
type Pool struct {
	workers   int
	queueSize int
	jobs      chan job
	logger    *slog.Logger

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a stopped pool.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers:   workers,
		queueSize: queueSize,
		logger:    logger.With("component", "pool"),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.jobs = make(chan job, p.queueSize)
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(p.ctx, p.jobs)
	}
	p.logger.Info("pool started", "workers", p.workers, "queue_size", p.queueSize)
}

// Stop cancels running jobs, lets queued jobs observe the cancelled context
// and waits for all of them to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("pool stopped")
}

// Submit enqueues j without blocking.
func (p *Pool) Submit(j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) work(ctx context.Context, jobs <-chan job) {
	defer p.wg.Done()
	for j := range jobs {
		p.runJob(ctx, j)
	}
}

func (p *Pool) runJob(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline job panicked", "panic", r)
		}
	}()
	j(ctx)
}
