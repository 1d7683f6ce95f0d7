package queue

import (
	"context"
	"sync"

	"logamizer/internal/logger"
)

// Handler runs one job to completion. Returned errors mark the job failed;
// the worker keeps draining.
type Handler func(ctx context.Context, job *Job) error

// WorkerPool drains the queue with a fixed number of goroutines. Each worker
// takes the per-file lock before running its handler, so two files never
// collide and a re-enqueued file waits its turn.
type WorkerPool struct {
	queue   *Queue
	workers int
	handler Handler
}

// NewWorkerPool wires a pool over the queue.
func NewWorkerPool(q *Queue, workers int, handler Handler) *WorkerPool {
	return &WorkerPool{queue: q, workers: workers, handler: handler}
}

// Run blocks until the context is cancelled and all in-flight jobs finish.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.drain(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *WorkerPool) drain(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Worker %d dequeue failed: %v", workerID, err)
			continue
		}
		if job == nil {
			continue // pop timeout, re-check shutdown
		}

		p.runJob(ctx, workerID, job)
	}
}

func (p *WorkerPool) runJob(ctx context.Context, workerID int, job *Job) {
	if job.LogFileID != "" {
		ok, err := p.queue.AcquireFileLock(ctx, job.LogFileID, job.ID)
		if err != nil {
			logger.Error("Worker %d lock error for file %s: %v", workerID, job.LogFileID, err)
			return
		}
		if !ok {
			// Another worker owns the file; push the job back for later.
			logger.Info("File %s busy, requeueing job %s", job.LogFileID, job.ID)
			if err := p.queue.Enqueue(ctx, job); err != nil {
				logger.Error("Requeue of job %s failed: %v", job.ID, err)
			}
			return
		}
		defer func() {
			if err := p.queue.ReleaseFileLock(context.Background(), job.LogFileID, job.ID); err != nil {
				logger.Warning("Lock release failed for file %s: %v", job.LogFileID, err)
			}
		}()
	}

	logger.Info("Worker %d running %s job %s", workerID, job.Kind, job.ID)
	if err := p.handler(ctx, job); err != nil {
		logger.Error("Job %s failed: %v", job.ID, err)
		return
	}
	logger.Info("Job %s completed", job.ID)
}
