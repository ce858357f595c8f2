package downloader

import (
	"context"
	"errors"
	"io"
	"time"

	errs "pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/metrics"
	"pixivcrawl/pkg/retry"
	"pixivcrawl/pkg/storage"
)

// Task is one page of one artwork to be saved at DestinationPath
type Task struct {
	ArtworkID       string
	PageIndex       int
	SourceURL       string
	DestinationPath string
}

// Status is the outcome of a Task
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusExists     Status = "exists"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Result reports what happened to a Task
type Result struct {
	Task     Task
	Status   Status
	Bytes    int64
	Attempts int
	Err      error
	Duration time.Duration
}

// OK reports whether the page is on disk after this result
func (r Result) OK() bool {
	return r.Status == StatusDownloaded || r.Status == StatusExists
}

// Fetcher streams a remote resource into w
type Fetcher interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Manager downloads single pages: skip what is already on disk, write the
// rest atomically, retry Transient failures.
type Manager struct {
	fetcher Fetcher
	retry   retry.Config
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewManager creates a download manager. retryCfg may be nil for defaults.
func NewManager(fetcher Fetcher, retryCfg *retry.Config, log logger.Logger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Manager{
		fetcher: fetcher,
		retry:   *retryCfg,
		logger:  log,
		metrics: m,
	}
}

// Download saves one page. It never returns a half-written DestinationPath:
// bytes land in a temp file that is renamed only after a complete transfer.
func (m *Manager) Download(ctx context.Context, task Task) Result {
	start := time.Now()
	result := Result{Task: task}

	if storage.Exists(task.DestinationPath) {
		result.Status = StatusExists
		result.Duration = time.Since(start)
		logger.LogDownload(m.logger, task.ArtworkID, task.PageIndex, true, nil)
		return result
	}

	cfg := m.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.metrics.Retry("download")
		m.logger.WarnWithFields("retrying page download", map[string]interface{}{
			"artwork":  task.ArtworkID,
			"page":     task.PageIndex,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
	}

	err := retry.Do(ctx, &cfg, func(ctx context.Context) error {
		result.Attempts++
		var fetchErr error
		writeErr := storage.AtomicWrite(task.DestinationPath, func(w io.Writer) error {
			result.Bytes, fetchErr = m.fetcher.Download(ctx, task.SourceURL, w)
			return fetchErr
		})
		if writeErr != nil && fetchErr == nil {
			return errs.Wrap(errs.ErrorTypeStorage, 0, "failed to store "+task.DestinationPath, writeErr)
		}
		return writeErr
	})
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusDownloaded
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		result.Status = StatusCancelled
		result.Bytes = 0
		result.Err = err
	default:
		result.Status = StatusFailed
		result.Bytes = 0
		result.Err = err
	}

	logger.LogDownload(m.logger, task.ArtworkID, task.PageIndex, false, result.Err)
	return result
}
