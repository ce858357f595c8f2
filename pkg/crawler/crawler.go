package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/checkpoint"
	errs "pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/metadata"
	"pixivcrawl/pkg/metrics"
	"pixivcrawl/pkg/pixiv"
	"pixivcrawl/pkg/retry"
	"pixivcrawl/pkg/storage"
)

// ErrInterrupted is returned when the run context ends before the crawl
// does. The state has been saved and a rerun resumes.
var ErrInterrupted = errors.New("crawl interrupted")

// Options tune a Crawler. Zero values mean defaults.
type Options struct {
	PageSize  int
	Workers   int
	QueueSize int

	// MetadataOnly resolves artworks and records metadata without
	// downloading images
	MetadataOnly bool
	// WriteMetadata appends records to metadata.jsonl in the author directory
	WriteMetadata bool
	// RunTimeout bounds a whole run; 0 means no limit
	RunTimeout time.Duration

	// Retry is used for listing pages and resolving artworks
	Retry *retry.Config

	Logger   logger.Logger
	Metrics  *metrics.Metrics
	Reporter Reporter

	// Abort stops downloads already in progress when done. The run context
	// only stops new work. Defaults to a context that is never done.
	Abort context.Context
}

// Crawler drives one author's crawl: list, resolve, download, record.
type Crawler struct {
	source Source
	runner downloader.Runner
	store  checkpoint.Store
	layout *storage.Manager
	opts   Options
	logger logger.Logger
}

// New creates a crawler
func New(source Source, runner downloader.Runner, store checkpoint.Store, layout *storage.Manager, opts Options) *Crawler {
	if opts.PageSize <= 0 {
		opts.PageSize = 48
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	if opts.Abort == nil {
		opts.Abort = context.Background()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Crawler{
		source: source,
		runner: runner,
		store:  store,
		layout: layout,
		opts:   opts,
		logger: log.WithField("component", "crawler"),
	}
}

type eventKind int

const (
	evListed eventKind = iota
	evAlready
	evSkip
	evFail
	evRegister
	evResolvedOnly
)

// event is sent from the producer to the collector
type event struct {
	kind       eventKind
	id         string
	pages      int
	err        error
	page       int
	unique     int
	duplicates int
}

// tracker follows the pages of one artwork
type tracker struct {
	pages      int
	registered bool
	downloaded int
	existing   int
	failed     int
	cancelled  int
	firstErr   error
	failedPage int
	finalized  bool
}

func (t *tracker) settled() int {
	return t.downloaded + t.existing + t.failed + t.cancelled
}

// run holds everything that lives for the duration of one Run call. The
// state, summary and trackers belong to the collector goroutine.
type run struct {
	c       *Crawler
	author  pixiv.AuthorID
	id      string
	log     logger.Logger
	skipIDs map[string]struct{}

	pool     *downloader.WorkerPool
	events   chan event
	recorder *metadata.Recorder

	state    *checkpoint.State
	summary  *Summary
	trackers map[string]*tracker
	failed   []string
	skipped  []string

	listed bool

	cancelDispatch context.CancelFunc
	cancelTransfer context.CancelFunc
	fatalOnce      sync.Once
	fatalErr       error
}

// Run crawls author until the listing is exhausted and every queued page
// has settled. Per-artwork failures do not fail the run; they are counted
// in the summary. A Fatal error aborts the run and is returned wrapped. If
// ctx ends first the error wraps ErrInterrupted. The summary is returned
// in every case where crawling started, and the state has been saved.
func (c *Crawler) Run(ctx context.Context, author pixiv.AuthorID) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := c.logger.WithFields(map[string]interface{}{
		"author": string(author),
		"run_id": runID,
	})

	if c.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RunTimeout)
		defer cancel()
	}

	state, err := c.store.Load(string(author))
	if err != nil {
		return nil, fmt.Errorf("failed to load crawl state: %w", err)
	}
	if state == nil {
		state = checkpoint.NewState(string(author))
	}
	state.RunID = runID
	state.Interrupted = false
	state.FatalError = ""

	dir, err := c.layout.EnsureAuthorDir(string(author))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, 0, "failed to prepare output directory", err)
	}
	if n, err := c.layout.CleanTemp(string(author)); err != nil {
		log.WithError(err).Warn("Failed to clean leftover temp files")
	} else if n > 0 {
		log.InfoWithFields("Removed leftover temp files", map[string]interface{}{"count": n})
	}

	var recorder *metadata.Recorder
	if c.opts.WriteMetadata || c.opts.MetadataOnly {
		recorder, err = metadata.Open(dir)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStorage, 0, "failed to open metadata file", err)
		}
	}

	if err := c.store.Save(state); err != nil {
		recorder.Close()
		return nil, errs.Wrap(errs.ErrorTypeStorage, 0, "failed to save crawl state", err)
	}

	// The producer works from a snapshot so it never reads the state.
	skipIDs := make(map[string]struct{}, len(state.Completed))
	if !c.opts.MetadataOnly {
		for id := range state.Completed {
			skipIDs[id] = struct{}{}
		}
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	transferCtx, cancelTransfer := context.WithCancel(c.opts.Abort)
	defer cancelTransfer()

	r := &run{
		c:        c,
		author:   author,
		id:       runID,
		log:      log,
		skipIDs:  skipIDs,
		pool:     downloader.NewWorkerPool(c.opts.Workers, c.opts.QueueSize, c.runner, log, c.opts.Metrics),
		events:   make(chan event, c.opts.Workers*2),
		recorder: recorder,
		state:    state,
		summary: &Summary{
			RunID:        runID,
			AuthorID:     string(author),
			MetadataOnly: c.opts.MetadataOnly,
		},
		trackers:       make(map[string]*tracker),
		cancelDispatch: cancelDispatch,
		cancelTransfer: cancelTransfer,
	}

	log.InfoWithFields("Starting crawl", map[string]interface{}{
		"workers":          r.pool.Workers(),
		"page_size":        c.opts.PageSize,
		"already_complete": len(state.Completed),
		"metadata_only":    c.opts.MetadataOnly,
	})
	c.opts.Reporter.Started(string(author), runID)

	r.pool.Start(dispatchCtx, transferCtx)

	var g errgroup.Group
	g.Go(func() error {
		defer close(r.events)
		defer r.pool.Close()
		r.produce(dispatchCtx)
		return nil
	})
	g.Go(func() error {
		r.collect()
		return nil
	})
	g.Wait()

	return r.finish(ctx, start)
}

func (r *run) abort(err error) {
	r.fatalOnce.Do(func() {
		r.fatalErr = err
		r.log.WithError(err).Error("Fatal error, aborting crawl")
		r.cancelDispatch()
		r.cancelTransfer()
	})
}

// produce lists, deduplicates, resolves and queues. It is the only
// goroutine that submits to the pool.
func (r *run) produce(ctx context.Context) {
	pager := NewPaginator(r.c.source, r.author, r.c.opts.PageSize, r.c.retryFor("list"))
	seen := make(map[pixiv.ArtworkID]struct{})

	for {
		ids, err := pager.Next(ctx)
		if errors.Is(err, io.EOF) {
			r.listed = true
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				r.abort(fmt.Errorf("failed to list artworks of %s: %w", r.author, err))
			}
			return
		}

		fresh := make([]pixiv.ArtworkID, 0, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			fresh = append(fresh, id)
		}
		r.events <- event{
			kind:       evListed,
			page:       pager.Pages(),
			unique:     len(fresh),
			duplicates: len(ids) - len(fresh),
		}

		for _, id := range fresh {
			if _, done := r.skipIDs[string(id)]; done {
				r.events <- event{kind: evAlready, id: string(id)}
				continue
			}
			if !r.queue(ctx, id) {
				return
			}
		}
	}
}

// queue resolves one artwork and submits its pages. It returns false when
// the producer must stop.
func (r *run) queue(ctx context.Context, id pixiv.ArtworkID) bool {
	if ctx.Err() != nil {
		return false
	}

	art, err := retry.DoWithResult(ctx, r.c.retryFor("resolve"), func(ctx context.Context) (*pixiv.Artwork, error) {
		return r.c.source.Resolve(ctx, id)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		switch errs.Classify(err) {
		case errs.ClassNone:
			return false
		case errs.ClassFatal:
			r.abort(fmt.Errorf("failed to resolve artwork %s: %w", id, err))
			return false
		case errs.ClassNotFound:
			r.events <- event{kind: evSkip, id: string(id), err: err}
		default:
			r.events <- event{kind: evFail, id: string(id), err: err}
		}
		return true
	}

	if err := r.recorder.RecordArtwork(metadata.FromArtwork(r.id, art)); err != nil {
		r.log.WithError(err).Warn("Failed to record artwork metadata")
	}

	if r.c.opts.MetadataOnly {
		r.events <- event{kind: evResolvedOnly, id: string(id)}
		return true
	}

	if len(art.ImageURLs) == 0 {
		r.events <- event{kind: evFail, id: string(id), err: errs.New(errs.ErrorTypeParsing, 0, "artwork has no pages")}
		return true
	}

	tasks := make([]downloader.Task, len(art.ImageURLs))
	for i, u := range art.ImageURLs {
		tasks[i] = downloader.Task{
			ArtworkID:       string(id),
			PageIndex:       i,
			SourceURL:       u,
			DestinationPath: r.c.layout.PagePath(string(r.author), string(id), i, u),
		}
	}

	r.events <- event{kind: evRegister, id: string(id), pages: len(tasks)}
	for _, task := range tasks {
		if err := r.pool.Submit(ctx, task); err != nil {
			return false
		}
	}
	return true
}

// collect is the only writer of the crawl state. It runs until the
// producer has finished and the pool has reported every submitted task.
func (r *run) collect() {
	events, results := r.events, r.pool.Results()
	for events != nil || results != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handleEvent(ev)
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			r.handleResult(res)
		}
	}
}

func (r *run) handleEvent(ev event) {
	rep := r.c.opts.Reporter

	switch ev.kind {
	case evListed:
		r.summary.Discovered += ev.unique
		r.summary.Duplicates += ev.duplicates
		r.state.LastPage = ev.page
		rep.Discovered(r.summary.Discovered)
		r.persist()

	case evAlready:
		r.summary.AlreadyComplete++
		r.c.opts.Metrics.ArtworkFinished("already_complete")

	case evSkip:
		r.state.MarkSkipped(ev.id, ev.err.Error())
		r.skipped = append(r.skipped, ev.id)
		r.summary.Skipped++
		r.log.WithError(ev.err).WithField("artwork", ev.id).Info("Artwork not found, skipping")
		r.c.opts.Metrics.ArtworkFinished(string(OutcomeSkipped))
		rep.ArtworkFinished(ev.id, OutcomeSkipped, ev.err)
		r.persist()

	case evFail:
		r.fail(ev.id, "resolve", 0, ev.err)

	case evResolvedOnly:
		r.summary.Complete++
		r.c.opts.Metrics.ArtworkFinished(string(OutcomeComplete))
		rep.ArtworkFinished(ev.id, OutcomeComplete, nil)

	case evRegister:
		t := r.tracker(ev.id)
		t.pages = ev.pages
		t.registered = true
		rep.ArtworkQueued(ev.id, ev.pages)
		r.settle(ev.id, t)
	}
}

func (r *run) handleResult(res downloader.Result) {
	id := res.Task.ArtworkID
	t := r.tracker(id)

	r.c.opts.Metrics.PageFinished(string(res.Status), res.Bytes, res.Duration)
	r.c.opts.Reporter.PageFinished(res)
	r.recordImage(res)

	switch res.Status {
	case downloader.StatusDownloaded:
		t.downloaded++
		r.summary.PagesDownloaded++
		r.summary.Bytes += res.Bytes
	case downloader.StatusExists:
		t.existing++
		r.summary.PagesExisting++
	case downloader.StatusCancelled:
		t.cancelled++
	default:
		if errs.IsFatal(res.Err) {
			t.cancelled++
			r.abort(fmt.Errorf("failed to download artwork %s page %d: %w", id, res.Task.PageIndex, res.Err))
			break
		}
		t.failed++
		r.summary.PagesFailed++
		if t.firstErr == nil {
			t.firstErr = res.Err
			t.failedPage = res.Task.PageIndex
		}
	}

	r.settle(id, t)
}

// settle finalizes an artwork once its outcome is known: Failed on the
// first failed page, Complete when every page is on disk. A result read
// after an abort still counts; its file was renamed before the transfer
// was cancelled, otherwise it would be reported as cancelled.
func (r *run) settle(id string, t *tracker) {
	if t.finalized {
		return
	}
	if t.firstErr != nil {
		t.finalized = true
		r.fail(id, "download", t.failedPage, t.firstErr)
		return
	}
	if !t.registered || t.settled() < t.pages || t.cancelled > 0 {
		return
	}

	t.finalized = true
	r.state.MarkComplete(id, checkpoint.Completion{
		Pages:          t.pages,
		Downloaded:     t.downloaded,
		AlreadyPresent: t.existing,
	})
	r.summary.Complete++
	r.c.opts.Metrics.ArtworkFinished(string(OutcomeComplete))
	r.c.opts.Reporter.ArtworkFinished(id, OutcomeComplete, nil)
	r.persist()
}

func (r *run) fail(id, kind string, page int, err error) {
	r.state.MarkFailed(id, checkpoint.Failure{
		Kind:      kind,
		ErrorType: string(errs.TypeOf(err)),
		Error:     err.Error(),
		Page:      page,
	})
	r.failed = append(r.failed, id)
	r.summary.Failed++
	r.log.WithError(err).WithFields(map[string]interface{}{
		"artwork": id,
		"stage":   kind,
	}).Warn("Artwork failed")
	r.c.opts.Metrics.ArtworkFinished(string(OutcomeFailed))
	r.c.opts.Reporter.ArtworkFinished(id, OutcomeFailed, err)
	r.persist()
}

func (r *run) tracker(id string) *tracker {
	t, ok := r.trackers[id]
	if !ok {
		t = &tracker{}
		r.trackers[id] = t
	}
	return t
}

func (r *run) recordImage(res downloader.Result) {
	rec := &metadata.ImageRecord{
		Kind:      metadata.KindImage,
		RunID:     r.id,
		ArtworkID: res.Task.ArtworkID,
		Page:      res.Task.PageIndex,
		URL:       res.Task.SourceURL,
		Path:      res.Task.DestinationPath,
		Status:    string(res.Status),
		Bytes:     res.Bytes,
		At:        time.Now(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := r.recorder.RecordImage(rec); err != nil {
		r.log.WithError(err).Warn("Failed to record image metadata")
	}
}

// persist saves the state. A state that cannot be written is fatal: the
// next run would repeat or lose work.
func (r *run) persist() {
	if err := r.c.store.Save(r.state); err != nil {
		r.abort(errs.Wrap(errs.ErrorTypeStorage, 0, "failed to save crawl state", err))
	}
}

func (r *run) finish(ctx context.Context, start time.Time) (*Summary, error) {
	s := r.summary
	for _, t := range r.trackers {
		if !t.finalized {
			s.Unfinished++
		}
	}

	s.Interrupted = r.fatalErr == nil && ctx.Err() != nil && (!r.listed || s.Unfinished > 0)
	s.Fatal = r.fatalErr
	s.FailedIDs = sortIDs(r.failed)
	s.SkippedIDs = sortIDs(r.skipped)
	s.Duration = time.Since(start)

	r.state.Interrupted = s.Interrupted || s.Fatal != nil
	if s.Fatal != nil {
		r.state.FatalError = s.Fatal.Error()
	}
	saveErr := r.c.store.Save(r.state)
	if saveErr != nil {
		r.log.WithError(saveErr).Error("Failed to save final crawl state")
	}
	if err := r.recorder.Close(); err != nil {
		r.log.WithError(err).Warn("Failed to close metadata file")
	}

	if r.listed && s.Discovered == 0 {
		r.log.Warn("Author listing is empty; the cookie may be invalid or the profile private")
	}

	r.log.InfoWithFields("Crawl finished", map[string]interface{}{
		"complete":         s.Complete,
		"already_complete": s.AlreadyComplete,
		"failed":           s.Failed,
		"skipped":          s.Skipped,
		"unfinished":       s.Unfinished,
		"pages_downloaded": s.PagesDownloaded,
		"pages_existing":   s.PagesExisting,
		"bytes":            s.Bytes,
		"duration":         s.Duration.String(),
	})
	r.c.opts.Reporter.Finished(s)

	switch {
	case s.Fatal != nil:
		return s, fmt.Errorf("crawl aborted: %w", s.Fatal)
	case s.Interrupted:
		return s, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	case saveErr != nil:
		return s, errs.Wrap(errs.ErrorTypeStorage, 0, "failed to save crawl state", saveErr)
	}
	return s, nil
}

// retryFor copies the configured policy and counts retries under op
func (c *Crawler) retryFor(op string) *retry.Config {
	cfg := retry.DefaultConfig()
	if c.opts.Retry != nil {
		copied := *c.opts.Retry
		cfg = &copied
	}

	m := c.opts.Metrics
	log := c.logger
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.Retry(op)
		log.DebugWithFields("retrying "+op, map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if next != nil {
			next(attempt, err, delay)
		}
	}
	return cfg
}

// sortIDs orders numeric IDs ascending without parsing them
func sortIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
