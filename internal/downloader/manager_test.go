package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/retry"
)

// scriptedFetcher fails the first len(failures) calls with the given errors
// and then writes body.
type scriptedFetcher struct {
	mu       sync.Mutex
	failures []error
	body     []byte
	calls    atomic.Int32
	partial  bool
}

func (f *scriptedFetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	f.calls.Add(1)
	f.mu.Lock()
	var err error
	if len(f.failures) > 0 {
		err = f.failures[0]
		f.failures = f.failures[1:]
	}
	f.mu.Unlock()

	if err != nil {
		if f.partial {
			w.Write(f.body[:len(f.body)/2])
		}
		return 0, err
	}
	n, werr := w.Write(f.body)
	return int64(n), werr
}

func fastRetry(attempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
	}
}

func newTask(dir string) Task {
	return Task{
		ArtworkID:       "500",
		PageIndex:       0,
		SourceURL:       "https://i.pximg.net/img-original/500_p0.png",
		DestinationPath: filepath.Join(dir, "500_0.png"),
	}
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.part"))
	assert.Empty(t, leftovers, "temp files must not survive")
}

func TestManagerDownload(t *testing.T) {
	dir := t.TempDir()
	fetcher := &scriptedFetcher{body: []byte("png bytes")}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), newTask(dir))
	require.NoError(t, res.Err)
	assert.Equal(t, StatusDownloaded, res.Status)
	assert.True(t, res.OK())
	assert.Equal(t, int64(9), res.Bytes)
	assert.Equal(t, 1, res.Attempts)

	data, err := os.ReadFile(filepath.Join(dir, "500_0.png"))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
	assertNoTemp(t, dir)
}

func TestManagerSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	task := newTask(dir)
	require.NoError(t, os.WriteFile(task.DestinationPath, []byte("already here"), 0644))

	fetcher := &scriptedFetcher{body: []byte("new")}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), task)
	assert.Equal(t, StatusExists, res.Status)
	assert.True(t, res.OK())
	assert.Equal(t, int32(0), fetcher.calls.Load(), "no network for existing files")
}

func TestManagerRedownloadsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	task := newTask(dir)
	require.NoError(t, os.WriteFile(task.DestinationPath, nil, 0644))

	fetcher := &scriptedFetcher{body: []byte("fresh")}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), task)
	assert.Equal(t, StatusDownloaded, res.Status)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestManagerRetriesTransient(t *testing.T) {
	dir := t.TempDir()
	reset := errs.Wrap(errs.ErrorTypeNetwork, 0, "download interrupted", io.ErrUnexpectedEOF)
	fetcher := &scriptedFetcher{
		failures: []error{reset, errs.FromStatus(503)},
		body:     []byte("third time lucky"),
		partial:  true,
	}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), newTask(dir))
	require.NoError(t, res.Err)
	assert.Equal(t, StatusDownloaded, res.Status)
	assert.Equal(t, 3, res.Attempts)

	data, err := os.ReadFile(filepath.Join(dir, "500_0.png"))
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", string(data))
	assertNoTemp(t, dir)
}

func TestManagerExhaustsRetries(t *testing.T) {
	dir := t.TempDir()
	timeout := errs.Wrap(errs.ErrorTypeNetwork, 0, "request failed", context.DeadlineExceeded)
	fetcher := &scriptedFetcher{
		failures: []error{timeout, timeout, timeout, timeout},
		body:     []byte("never"),
		partial:  true,
	}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), newTask(dir))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, errs.IsTransient(res.Err))

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, res.Err, &exhausted)

	assert.NoFileExists(t, filepath.Join(dir, "500_0.png"))
	assertNoTemp(t, dir)
}

func TestManagerFatalNotRetried(t *testing.T) {
	dir := t.TempDir()
	fetcher := &scriptedFetcher{failures: []error{errs.FromStatus(403)}}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), newTask(dir))
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errs.IsFatal(res.Err))
	assert.Equal(t, 1, res.Attempts)
}

func TestManagerStorageFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	task := newTask(dir)
	task.DestinationPath = filepath.Join(blocker, "500_0.png")

	fetcher := &scriptedFetcher{body: []byte("data")}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	res := m.Download(context.Background(), task)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, errs.ErrorTypeStorage, errs.TypeOf(res.Err))
	assert.True(t, errs.IsFatal(res.Err))
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	w.Write([]byte("partial"))
	close(f.started)
	<-ctx.Done()
	return 7, ctx.Err()
}

func TestManagerCancelledMidTransfer(t *testing.T) {
	dir := t.TempDir()
	fetcher := &blockingFetcher{started: make(chan struct{})}
	m := NewManager(fetcher, fastRetry(3), logger.NewNopLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-fetcher.started
		cancel()
	}()

	res := m.Download(ctx, newTask(dir))
	assert.Equal(t, StatusCancelled, res.Status)
	assert.False(t, res.OK())
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.NoFileExists(t, filepath.Join(dir, "500_0.png"))
	assertNoTemp(t, dir)
}

func TestManagerDistinctPagesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(&scriptedFetcher{body: []byte("x")}, fastRetry(1), logger.NewNopLogger(), nil)

	for page := 0; page < 3; page++ {
		task := newTask(dir)
		task.PageIndex = page
		task.DestinationPath = filepath.Join(dir, fmt.Sprintf("500_%d.png", page))
		require.Equal(t, StatusDownloaded, m.Download(context.Background(), task).Status)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "500_*.png"))
	assert.Len(t, files, 3)
}
