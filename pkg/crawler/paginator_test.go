package crawler

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/pixiv"
)

func TestPaginatorStopsOnEmptyPage(t *testing.T) {
	src := newFakeSource([][]pixiv.ArtworkID{{"9", "8"}, {"7", "6"}, {"5"}})
	p := NewPaginator(src, "1", 2, fastRetry())

	var all []pixiv.ArtworkID
	for {
		ids, err := p.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		all = append(all, ids...)
	}

	// N pages of P with a last page of K yield N*P - (P-K) IDs
	assert.Len(t, all, 3*2-(2-1))
	assert.Equal(t, 3, p.Pages())

	_, err := p.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 4, src.listCalls(), "no requests after exhaustion")
}

func TestPaginatorRetriesTransient(t *testing.T) {
	src := newFakeSource([][]pixiv.ArtworkID{{"3"}})
	src.listFailures = 2
	src.listErr = errs.New(errs.ErrorTypeServerError, 502, "bad gateway")
	p := NewPaginator(src, "1", 1, fastRetry())

	ids, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pixiv.ArtworkID{"3"}, ids)
	assert.Equal(t, 3, src.listCalls())
}

func TestPaginatorFatalIsNotRetried(t *testing.T) {
	src := newFakeSource(nil)
	src.listFailures = -1
	src.listErr = errs.New(errs.ErrorTypeAuth, 401, "login required")
	p := NewPaginator(src, "1", 10, fastRetry())

	_, err := p.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 1, src.listCalls())
}
