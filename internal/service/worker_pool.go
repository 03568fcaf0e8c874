package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailprobe/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Job is a unit of deferred work. Delay is a property of the scheduled
// invocation and elapses on the worker, not the submitter.
type Job struct {
	Delay time.Duration
	Run   func(ctx context.Context)
}

// WorkerPool runs jobs on a fixed number of workers with a bounded queue,
// so dispatch load cannot create unbounded concurrent IMAP sessions.
type WorkerPool struct {
	workers int
	jobs    chan Job
	logger  *logrus.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewWorkerPool(workers, queueSize int, logger *logrus.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &WorkerPool{
		workers: workers,
		jobs:    make(chan Job, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. The context bounds the lifetime of every
// job the pool runs.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.WithFields(logrus.Fields{
		"workers":    p.workers,
		"queue_size": cap(p.jobs),
	}).Info("Worker pool started")
}

// Submit enqueues a job without blocking. It fails when the pool has been
// stopped or the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is stopped")
	}
	p.mu.Unlock()

	select {
	case p.jobs <- job:
		metrics.SetGauge("worker_pool_queue_depth", float64(len(p.jobs)), nil, "Queued bounce check jobs")
		return nil
	default:
		metrics.IncrementCounter("worker_pool_rejected_total", nil, "Jobs rejected because the queue was full")
		return fmt.Errorf("worker pool queue is full")
	}
}

// Stop prevents further submissions, drains queued jobs, and waits for
// workers to finish.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		if job.Delay > 0 {
			timer := time.NewTimer(job.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				p.logger.WithField("worker", id).Debug("Worker context cancelled while waiting")
				return
			case <-timer.C:
			}
		}

		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		job.Run(ctx)
		metrics.RecordTimer("worker_job_duration", time.Since(start), nil, "Bounce check job duration")
	}
}
