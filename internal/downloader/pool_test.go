package downloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/metrics"
)

// fakeRunner records concurrency and optionally blocks until released
type fakeRunner struct {
	delay    time.Duration
	release  chan struct{}
	started  chan Task
	active   atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	executed []Task
}

func (r *fakeRunner) Download(ctx context.Context, task Task) Result {
	n := r.active.Add(1)
	for {
		max := r.maxSeen.Load()
		if n <= max || r.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	defer r.active.Add(-1)

	if r.started != nil {
		r.started <- task
	}
	if r.release != nil {
		<-r.release
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.executed = append(r.executed, task)
	r.mu.Unlock()
	return Result{Task: task, Status: StatusDownloaded, Bytes: 1}
}

func collect(pool *WorkerPool) []Result {
	var results []Result
	for r := range pool.Results() {
		results = append(results, r)
	}
	return results
}

func TestWorkerPoolProcessesAll(t *testing.T) {
	runner := &fakeRunner{delay: 2 * time.Millisecond}
	pool := NewWorkerPool(3, 0, runner, logger.NewNopLogger(), metrics.New())
	assert.Equal(t, 3, pool.Workers())

	ctx := context.Background()
	pool.Start(ctx, ctx)

	done := make(chan []Result)
	go func() { done <- collect(pool) }()

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(ctx, Task{ArtworkID: fmt.Sprint(i)}))
	}
	pool.Close()

	results := <-done
	assert.Len(t, results, 20)
	for _, r := range results {
		assert.Equal(t, StatusDownloaded, r.Status)
	}
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(3), "never more than numWorkers in flight")
}

func TestWorkerPoolDefaults(t *testing.T) {
	pool := NewWorkerPool(0, 0, &fakeRunner{}, nil, nil)
	assert.Equal(t, 1, pool.Workers())
	assert.Equal(t, 2, cap(pool.jobQueue))
}

func TestWorkerPoolSubmitBlocksWhenFull(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan Task, 1)}
	pool := NewWorkerPool(1, 1, runner, logger.NewNopLogger(), nil)

	ctx := context.Background()
	pool.Start(ctx, ctx)

	require.NoError(t, pool.Submit(ctx, Task{ArtworkID: "1"}))
	<-runner.started // worker busy with 1
	require.NoError(t, pool.Submit(ctx, Task{ArtworkID: "2"})) // fills queue

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(short, Task{ArtworkID: "3"})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "full queue applies backpressure")

	close(runner.release)
	pool.Close()
	go func() {
		for range runner.started {
		}
	}()
	results := collect(pool)
	assert.Len(t, results, 2)
}

func TestWorkerPoolCancelDispatch(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan Task, 1)}
	pool := NewWorkerPool(1, 4, runner, logger.NewNopLogger(), nil)

	dispatch, cancelDispatch := context.WithCancel(context.Background())
	transfer := context.Background()
	pool.Start(dispatch, transfer)

	require.NoError(t, pool.Submit(dispatch, Task{ArtworkID: "in-flight"}))
	<-runner.started
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(dispatch, Task{ArtworkID: fmt.Sprintf("queued-%d", i)}))
	}

	cancelDispatch()
	assert.Error(t, pool.Submit(dispatch, Task{ArtworkID: "late"}))
	pool.Close()
	close(runner.release)

	byID := make(map[string]Status)
	for _, r := range collect(pool) {
		byID[r.Task.ArtworkID] = r.Status
	}

	assert.Equal(t, StatusDownloaded, byID["in-flight"], "job in hand finishes")
	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusCancelled, byID[fmt.Sprintf("queued-%d", i)])
	}
	assert.NotContains(t, byID, "late")
	assert.Len(t, runner.executed, 1)
}
