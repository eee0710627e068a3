package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sellerpulse/notifier/internal/engine"
)

// Pool manages a fixed number of worker goroutines that process delivery
// jobs. The HTTP call inside each job is the suspension point of the whole
// pipeline; keeping it here means one unreachable endpoint only occupies
// one worker, never the detection path.
type Pool struct {
	numWorkers int
	jobs       chan engine.DeliveryJob
	deliverer  *Deliverer
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, deliverer *Deliverer, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.DeliveryJob, numWorkers*2),
		deliverer:  deliverer,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool via the jobs channel.
func (p *Pool) Submit(job engine.DeliveryJob) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for in-flight deliveries to
// finish. Jobs still queued in Redis are picked up on the next run.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			// The dispatcher already claimed this job out of Redis. Put it
			// back so the next run picks it up instead of losing it.
			p.deliverer.requeue(ctx, job, 0, false)
		default:
			p.deliverer.Deliver(ctx, job)
		}
	}
}
