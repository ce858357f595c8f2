package crawler

import (
	"context"
	"io"

	"pixivcrawl/pkg/pixiv"
	"pixivcrawl/pkg/retry"
)

// Paginator walks an author's listing one page at a time. It is finite and
// not restartable: once a page comes back empty every call returns io.EOF,
// and starting over takes a new Paginator.
type Paginator struct {
	source   PageSource
	author   pixiv.AuthorID
	pageSize int
	retry    *retry.Config

	offset int
	pages  int
	done   bool
}

// NewPaginator creates a paginator. Transient page failures are retried
// with retryCfg; nil means no retry.
func NewPaginator(source PageSource, author pixiv.AuthorID, pageSize int, retryCfg *retry.Config) *Paginator {
	if pageSize <= 0 {
		pageSize = 48
	}
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxAttempts: 1}
	}
	return &Paginator{
		source:   source,
		author:   author,
		pageSize: pageSize,
		retry:    retryCfg,
	}
}

// Next returns the next non-empty page, or io.EOF when the listing is
// exhausted.
func (p *Paginator) Next(ctx context.Context) ([]pixiv.ArtworkID, error) {
	if p.done {
		return nil, io.EOF
	}

	ids, err := retry.DoWithResult(ctx, p.retry, func(ctx context.Context) ([]pixiv.ArtworkID, error) {
		return p.source.ListPage(ctx, p.author, p.offset, p.pageSize)
	})
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		p.done = true
		return nil, io.EOF
	}

	p.offset += p.pageSize
	p.pages++
	return ids, nil
}

// Pages returns the number of pages returned so far
func (p *Paginator) Pages() int {
	return p.pages
}
