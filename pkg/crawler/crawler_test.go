package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/checkpoint"
	errs "pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/metadata"
	"pixivcrawl/pkg/pixiv"
	"pixivcrawl/pkg/retry"
	"pixivcrawl/pkg/storage"
)

const testAuthor = pixiv.AuthorID("7")

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNopLogger(),
	}
}

// fakeSource serves a fixed listing. Page i is returned for offset/limit == i.
type fakeSource struct {
	mu sync.Mutex

	pages      [][]pixiv.ArtworkID
	artworks   map[pixiv.ArtworkID]*pixiv.Artwork
	resolveErr map[pixiv.ArtworkID]error
	beforeFail map[pixiv.ArtworkID]func() // runs before resolveErr is returned

	listErr      error
	listFailures int // number of failing list calls, -1 for all
	blockFrom    int // pages from this index block until ctx is done; 0 disables

	lists    int
	resolves map[pixiv.ArtworkID]int
}

func newFakeSource(pages [][]pixiv.ArtworkID) *fakeSource {
	return &fakeSource{
		pages:      pages,
		artworks:   make(map[pixiv.ArtworkID]*pixiv.Artwork),
		resolveErr: make(map[pixiv.ArtworkID]error),
		beforeFail: make(map[pixiv.ArtworkID]func()),
		resolves:   make(map[pixiv.ArtworkID]int),
	}
}

func (f *fakeSource) ListPage(ctx context.Context, author pixiv.AuthorID, offset, limit int) ([]pixiv.ArtworkID, error) {
	f.mu.Lock()
	f.lists++
	idx := offset / limit
	failing := f.listFailures != 0
	if f.listFailures > 0 {
		f.listFailures--
	}
	block := f.blockFrom > 0 && idx >= f.blockFrom
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failing {
		return nil, f.listErr
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if idx >= len(f.pages) {
		return nil, nil
	}
	return append([]pixiv.ArtworkID(nil), f.pages[idx]...), nil
}

func (f *fakeSource) Resolve(ctx context.Context, id pixiv.ArtworkID) (*pixiv.Artwork, error) {
	f.mu.Lock()
	f.resolves[id]++
	err := f.resolveErr[id]
	hook := f.beforeFail[id]
	art := f.artworks[id]
	f.mu.Unlock()

	if err != nil {
		if hook != nil {
			hook()
		}
		return nil, err
	}
	if art == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, "artwork not found")
	}
	copied := *art
	return &copied, nil
}

func (f *fakeSource) add(id pixiv.ArtworkID, pages int) *pixiv.Artwork {
	art := &pixiv.Artwork{
		ID:        id,
		Title:     "artwork " + string(id),
		AuthorID:  testAuthor,
		PageCount: pages,
	}
	for i := 0; i < pages; i++ {
		art.ImageURLs = append(art.ImageURLs, imageURL(id, i))
	}
	f.mu.Lock()
	f.artworks[id] = art
	f.mu.Unlock()
	return art
}

func (f *fakeSource) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeSource) resolveCalls(id pixiv.ArtworkID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves[id]
}

func imageURL(id pixiv.ArtworkID, page int) string {
	return fmt.Sprintf("https://i.pximg.net/img-original/img/2024/01/02/03/04/05/%s_p%d.png", id, page)
}

type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: make(map[string]error), calls: make(map[string]int)}
}

func (f *fakeFetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.calls[url]++
	err := f.fail[url]
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, "image bytes of "+url)
	return int64(n), err
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type harness struct {
	out     string
	store   *checkpoint.JSONStore
	layout  *storage.Manager
	source  *fakeSource
	fetcher *fakeFetcher
}

func newHarness(t *testing.T, pages [][]pixiv.ArtworkID) *harness {
	t.Helper()

	out := t.TempDir()
	store, err := checkpoint.NewJSONStore(filepath.Join(t.TempDir(), "state"), logger.NewNopLogger())
	require.NoError(t, err)
	layout, err := storage.NewManager(out, true)
	require.NoError(t, err)

	return &harness{
		out:     out,
		store:   store,
		layout:  layout,
		source:  newFakeSource(pages),
		fetcher: newFakeFetcher(),
	}
}

func (h *harness) crawler(opts Options) *Crawler {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	opts.Retry = fastRetry()
	runner := downloader.NewManager(h.fetcher, fastRetry(), logger.NewNopLogger(), nil)
	return New(h.source, runner, h.store, h.layout, opts)
}

func (h *harness) path(id pixiv.ArtworkID, page int) string {
	return h.layout.PagePath(string(testAuthor), string(id), page, imageURL(id, page))
}

func (h *harness) state(t *testing.T) *checkpoint.State {
	t.Helper()
	st, err := h.store.Load(string(testAuthor))
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

// waitForFile blocks until path exists or two seconds pass
func waitForFile(path string) func() {
	return func() {
		deadline := time.Now().Add(2 * time.Second)
		for !storage.Exists(path) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
}

func TestRunPartialFailure(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"102", "101"}})
	h.source.add("101", 1)
	h.source.add("102", 3)
	h.fetcher.fail[imageURL("102", 1)] = errs.New(errs.ErrorTypeNetwork, 0, "connection reset")

	summary, err := h.crawler(Options{WriteMetadata: true}).Run(context.Background(), testAuthor)
	require.NoError(t, err, "per-artwork failures do not fail the run")

	assert.Equal(t, 1, summary.Complete)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"102"}, summary.FailedIDs)
	assert.Equal(t, "complete=1 failed=1 skipped=0", summary.Line())
	assert.True(t, summary.Success())

	assert.FileExists(t, h.path("101", 0))
	assert.NoFileExists(t, h.path("102", 1))
	assert.Equal(t, 3, h.fetcher.callsFor(imageURL("102", 1)), "retried until exhausted")

	parts, err := filepath.Glob(filepath.Join(h.out, "7", "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts, "no partial files left behind")

	st := h.state(t)
	assert.True(t, st.IsComplete("101"))
	assert.False(t, st.IsComplete("102"))
	require.Contains(t, st.Failed, "102")
	assert.Equal(t, "download", st.Failed["102"].Kind)
	assert.Equal(t, 1, st.Failed["102"].Page)
	assert.Equal(t, "network", st.Failed["102"].ErrorType)
	assert.False(t, st.Interrupted)
	assert.Equal(t, summary.RunID, st.RunID)

	records, err := metadata.ReadArtworks(filepath.Join(h.out, "7", metadata.FileName))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, summary.RunID, records["101"].RunID)
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"102", "101"}})
	h.source.add("101", 1)
	h.source.add("102", 3)

	first, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Complete)
	assert.Equal(t, 4, first.PagesDownloaded)
	assert.Equal(t, 4, h.fetcher.total())

	second, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Complete)
	assert.Equal(t, 2, second.AlreadyComplete)
	assert.Equal(t, 0, second.PagesDownloaded)
	assert.Equal(t, "complete=2 failed=0 skipped=0", second.Line())

	assert.Equal(t, 4, h.fetcher.total(), "second run downloads nothing")
	assert.Equal(t, 1, h.source.resolveCalls("102"), "completed artworks are not resolved again")
}

func TestRunWithoutStateReusesFilesOnDisk(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"102", "101"}})
	h.source.add("101", 1)
	h.source.add("102", 3)

	_, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)
	require.NoError(t, h.store.Delete(string(testAuthor)))

	summary, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Complete)
	assert.Equal(t, 0, summary.PagesDownloaded)
	assert.Equal(t, 4, summary.PagesExisting)
	assert.Equal(t, 4, h.fetcher.total())
	assert.True(t, h.state(t).IsComplete("102"))
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	// 105 shifted onto the second page while crawling
	h := newHarness(t, [][]pixiv.ArtworkID{{"106", "105"}, {"105", "104"}, {"103"}})
	for _, id := range []pixiv.ArtworkID{"106", "105", "104", "103"} {
		h.source.add(id, 1)
	}

	summary, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Discovered)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 4, summary.Complete)
	assert.Equal(t, 1, h.source.resolveCalls("105"))
	assert.Equal(t, 1, h.fetcher.callsFor(imageURL("105", 0)))
	assert.Equal(t, 3, h.state(t).LastPage)
}

func TestRunSkipsMissingArtworks(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"102", "101"}})
	h.source.add("101", 1)
	h.source.resolveErr["102"] = errs.New(errs.ErrorTypeNotFound, 0, "artwork is private or deleted")

	summary, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Complete)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"102"}, summary.SkippedIDs)
	assert.Equal(t, 1, h.source.resolveCalls("102"), "not found is not retried")

	st := h.state(t)
	assert.Contains(t, st.Skipped, "102")
	assert.Empty(t, st.Failed)
}

func TestRunResolveFailureIsRecorded(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"101"}})
	h.source.resolveErr["101"] = errs.New(errs.ErrorTypeServerError, 503, "service unavailable")

	summary, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, h.source.resolveCalls("101"))

	st := h.state(t)
	require.Contains(t, st.Failed, "101")
	assert.Equal(t, "resolve", st.Failed["101"].Kind)
	assert.Equal(t, "server_error", st.Failed["101"].ErrorType)
}

func TestRunFailedArtworkCompletesOnRerun(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"101"}})
	h.source.add("101", 2)
	h.fetcher.fail[imageURL("101", 1)] = errs.New(errs.ErrorTypeNetwork, 0, "timeout")

	_, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)
	require.Contains(t, h.state(t).Failed, "101")

	delete(h.fetcher.fail, imageURL("101", 1))
	summary, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Complete)
	assert.Equal(t, 1, summary.PagesExisting)
	assert.Equal(t, 1, summary.PagesDownloaded)

	st := h.state(t)
	assert.True(t, st.IsComplete("101"))
	assert.Empty(t, st.Failed)
}

func TestRunAbortsOnFatalResolve(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"103", "102", "101"}})
	h.source.add("103", 1)
	h.source.add("101", 1)
	h.source.resolveErr["102"] = errs.New(errs.ErrorTypeAuth, 401, "login required")
	h.source.beforeFail["102"] = waitForFile(h.path("103", 0))

	summary, err := h.crawler(Options{Workers: 1}).Run(context.Background(), testAuthor)
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.False(t, errors.Is(err, ErrInterrupted))
	require.NotNil(t, summary)
	assert.Error(t, summary.Fatal)
	assert.False(t, summary.Success())

	assert.Equal(t, 1, h.source.resolveCalls("102"), "fatal errors are not retried")
	assert.Equal(t, 0, h.source.resolveCalls("101"), "nothing is dispatched after the abort")
	assert.Equal(t, 0, h.fetcher.callsFor(imageURL("101", 0)))

	st := h.state(t)
	assert.True(t, st.Interrupted)
	assert.Contains(t, st.FatalError, "login required")
	assert.True(t, st.IsComplete("103"))
	assert.False(t, st.IsComplete("102"))
	assert.False(t, st.IsComplete("101"))
	assert.NotContains(t, st.Failed, "102")
}

func TestRunFatalKeepsArtworksAlreadyOnDisk(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, [][]pixiv.ArtworkID{{"103", "102"}})
		h.source.add("103", 1)
		h.source.resolveErr["102"] = errs.New(errs.ErrorTypeAuth, 401, "login required")
		done := h.path("103", 0)
		h.source.beforeFail["102"] = waitForFile(done)

		summary, err := h.crawler(Options{Workers: 1}).Run(context.Background(), testAuthor)
		require.Error(t, err)
		require.True(t, errs.IsFatal(err))
		require.FileExists(t, done)

		st := h.state(t)
		require.True(t, st.IsComplete("103"), "run %d: page on disk before the abort must be recorded", i)
		assert.Equal(t, 1, summary.Complete)
		assert.False(t, st.IsComplete("102"))
	}
}

func TestRunAbortsOnFatalDownload(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"101"}})
	h.source.add("101", 2)
	h.fetcher.fail[imageURL("101", 1)] = errs.New(errs.ErrorTypeAuth, 403, "forbidden")

	_, err := h.crawler(Options{Workers: 1}).Run(context.Background(), testAuthor)
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 1, h.fetcher.callsFor(imageURL("101", 1)))

	st := h.state(t)
	assert.False(t, st.IsComplete("101"))
	assert.Empty(t, st.Failed, "a fatal page is not recorded against the artwork")
	assert.NotEmpty(t, st.FatalError)
}

func TestRunAbortsOnListingFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.source.listFailures = -1
	h.source.listErr = errs.New(errs.ErrorTypeAuth, 0, "author listing rejected")

	_, err := h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 1, h.source.listCalls())
}

type cancelOnComplete struct {
	NopReporter
	cancel context.CancelFunc
}

func (r cancelOnComplete) ArtworkFinished(id string, outcome Outcome, err error) {
	if outcome == OutcomeComplete {
		r.cancel()
	}
}

func TestRunInterruptPersistsState(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"102"}, {"101"}})
	h.source.add("102", 2)
	h.source.add("101", 1)
	h.source.blockFrom = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summary, err := h.crawler(Options{PageSize: 1, Reporter: cancelOnComplete{cancel: cancel}}).Run(ctx, testAuthor)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Complete)

	st := h.state(t)
	assert.True(t, st.Interrupted)
	assert.Empty(t, st.FatalError)
	assert.True(t, st.IsComplete("102"))
	assert.False(t, st.IsComplete("101"))
	assert.Equal(t, 0, h.source.resolveCalls("101"))
}

func TestRunTimeoutStopsDispatch(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"101"}, {"102"}})
	h.source.add("101", 1)
	h.source.add("102", 1)
	h.source.blockFrom = 1

	summary, err := h.crawler(Options{PageSize: 1, RunTimeout: 300 * time.Millisecond}).Run(context.Background(), testAuthor)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, summary.Interrupted)

	st := h.state(t)
	assert.True(t, st.IsComplete("101"))
	assert.Equal(t, 0, h.source.resolveCalls("102"))
}

func TestRunMetadataOnly(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"102", "101"}})
	h.source.add("101", 1)
	h.source.add("102", 3).Tags = []string{"landscape"}

	summary, err := h.crawler(Options{MetadataOnly: true}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Complete)
	assert.True(t, summary.MetadataOnly)
	assert.Equal(t, 0, h.fetcher.total())
	assert.Empty(t, h.state(t).Completed, "images are still missing")

	records, err := metadata.ReadArtworks(filepath.Join(h.out, "7", metadata.FileName))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records["102"].PageCount)
	assert.Equal(t, []string{"landscape"}, records["102"].Tags)
	assert.Len(t, records["102"].ImageURLs, 3)
}

func TestRunWarnsOnEmptyListing(t *testing.T) {
	h := newHarness(t, nil)
	log := logger.NewTestLogger()

	summary, err := h.crawler(Options{Logger: log}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	assert.Equal(t, "complete=0 failed=0 skipped=0", summary.Line())
	assert.True(t, log.HasMessage("Author listing is empty; the cookie may be invalid or the profile private"))
}

func TestRunRemovesLeftoverTempFiles(t *testing.T) {
	h := newHarness(t, nil)
	dir, err := h.layout.EnsureAuthorDir(string(testAuthor))
	require.NoError(t, err)
	leftover := filepath.Join(dir, "101_0.png.123.part")
	require.NoError(t, os.WriteFile(leftover, []byte("half"), 0644))

	_, err = h.crawler(Options{}).Run(context.Background(), testAuthor)
	require.NoError(t, err)
	assert.NoFileExists(t, leftover)
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingReporter) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recordingReporter) Started(author, runID string) {
	r.add("started " + author)
}
func (r *recordingReporter) Discovered(unique int) {
	r.add(fmt.Sprintf("discovered %d", unique))
}
func (r *recordingReporter) ArtworkQueued(id string, pages int) {
	r.add(fmt.Sprintf("queued %s %d", id, pages))
}
func (r *recordingReporter) PageFinished(result downloader.Result) {
	r.add(fmt.Sprintf("page %s %d %s", result.Task.ArtworkID, result.Task.PageIndex, result.Status))
}
func (r *recordingReporter) ArtworkFinished(id string, outcome Outcome, err error) {
	r.add(fmt.Sprintf("finished %s %s", id, outcome))
}
func (r *recordingReporter) Finished(summary *Summary) {
	r.add("done " + summary.Line())
}

func TestRunReportsProgress(t *testing.T) {
	h := newHarness(t, [][]pixiv.ArtworkID{{"101"}})
	h.source.add("101", 2)
	rep := &recordingReporter{}

	_, err := h.crawler(Options{Reporter: rep}).Run(context.Background(), testAuthor)
	require.NoError(t, err)

	require.NotEmpty(t, rep.calls)
	assert.Equal(t, "started 7", rep.calls[0])
	assert.Equal(t, "done complete=1 failed=0 skipped=0", rep.calls[len(rep.calls)-1])
	assert.Contains(t, rep.calls, "discovered 1")
	assert.Contains(t, rep.calls, "queued 101 2")
	assert.Contains(t, rep.calls, "page 101 0 downloaded")
	assert.Contains(t, rep.calls, "page 101 1 downloaded")
	assert.Contains(t, rep.calls, "finished 101 complete")
}
