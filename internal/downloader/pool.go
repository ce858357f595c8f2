package downloader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/metrics"
)

// Runner executes one task; *Manager is the production runner
type Runner interface {
	Download(ctx context.Context, task Task) Result
}

// WorkerPool runs a fixed number of workers over a bounded job queue.
// Submit blocks while the queue is full, which throttles the producer.
type WorkerPool struct {
	numWorkers int
	jobQueue   chan Task
	results    chan Result
	runner     Runner
	logger     logger.Logger
	metrics    *metrics.Metrics

	group     errgroup.Group
	startOnce sync.Once
	closeOnce sync.Once
}

// NewWorkerPool creates a pool. A non-positive queueSize means twice the
// number of workers.
func NewWorkerPool(numWorkers, queueSize int, runner Runner, log logger.Logger, m *metrics.Metrics) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 2
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Task, queueSize),
		results:    make(chan Result, numWorkers),
		runner:     runner,
		logger:     log,
		metrics:    m,
	}
}

// Start launches the workers. Once dispatch is done, workers stop taking
// new work and report every queued task as cancelled. transfer is handed to
// the runner, so a download in progress only stops when transfer is done.
// Results is closed after the queue is closed and drained.
func (wp *WorkerPool) Start(dispatch, transfer context.Context) {
	wp.startOnce.Do(func() {
		wp.logger.InfoWithFields("starting worker pool", map[string]interface{}{
			"num_workers": wp.numWorkers,
			"queue_size":  cap(wp.jobQueue),
		})

		for i := 0; i < wp.numWorkers; i++ {
			id := i
			wp.group.Go(func() error {
				wp.worker(dispatch, transfer, id)
				return nil
			})
		}

		go func() {
			wp.group.Wait()
			close(wp.results)
			wp.logger.Debug("worker pool stopped")
		}()
	})
}

// Submit queues a task, blocking while the queue is full
func (wp *WorkerPool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case wp.jobQueue <- task:
		wp.metrics.SetQueueDepth(len(wp.jobQueue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no more tasks will be submitted
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() { close(wp.jobQueue) })
}

// Results delivers one Result per submitted task. It must be drained until
// closed, otherwise workers block.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.results
}

// QueueSize returns the number of tasks waiting for a worker
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

// Workers returns the number of workers
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

func (wp *WorkerPool) worker(dispatch, transfer context.Context, id int) {
	wp.logger.DebugWithFields("worker started", map[string]interface{}{"worker_id": id})

	for task := range wp.jobQueue {
		wp.metrics.SetQueueDepth(len(wp.jobQueue))

		if err := dispatch.Err(); err != nil {
			wp.results <- Result{Task: task, Status: StatusCancelled, Err: err}
			continue
		}

		wp.metrics.DownloadStarted()
		result := wp.runner.Download(transfer, task)
		wp.metrics.DownloadDone()

		wp.results <- result
	}

	wp.logger.DebugWithFields("worker stopping - job queue closed", map[string]interface{}{"worker_id": id})
}
