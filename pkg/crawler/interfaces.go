package crawler

import (
	"context"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/pixiv"
)

// PageSource serves one page of an author's listing. An empty page means
// the listing is exhausted.
type PageSource interface {
	ListPage(ctx context.Context, author pixiv.AuthorID, offset, limit int) ([]pixiv.ArtworkID, error)
}

// Resolver turns an artwork ID into metadata with one URL per page
type Resolver interface {
	Resolve(ctx context.Context, id pixiv.ArtworkID) (*pixiv.Artwork, error)
}

// Source is everything the crawler needs from pixiv; *pixiv.Client
// implements it.
type Source interface {
	PageSource
	Resolver
}

// Reporter receives progress. Calls for one run are never concurrent and
// arrive in order, so implementations need no locking of their own.
type Reporter interface {
	Started(author, runID string)
	Discovered(unique int)
	ArtworkQueued(id string, pages int)
	PageFinished(result downloader.Result)
	ArtworkFinished(id string, outcome Outcome, err error)
	Finished(summary *Summary)
}

// NopReporter ignores progress
type NopReporter struct{}

func (NopReporter) Started(string, string)                 {}
func (NopReporter) Discovered(int)                         {}
func (NopReporter) ArtworkQueued(string, int)              {}
func (NopReporter) PageFinished(downloader.Result)         {}
func (NopReporter) ArtworkFinished(string, Outcome, error) {}
func (NopReporter) Finished(*Summary)                      {}
