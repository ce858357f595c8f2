// Package crawler runs the crawl of one author: it pages through the
// listing, drops duplicate and already completed artworks, resolves each
// artwork into its page URLs and feeds one download task per page to a
// bounded worker pool.
//
// A single collector goroutine owns the crawl state. It receives artwork
// registrations from the producer and page results from the pool, marks
// an artwork Complete once every page is on disk or Failed on its first
// failed page, and saves the state after every change. A Fatal error
// cancels dispatch and stops new completions from being recorded.
//
//	c := crawler.New(client, manager, store, layout, crawler.Options{Workers: 4})
//	summary, err := c.Run(ctx, "2188232")
//	fmt.Println(summary.Line())
package crawler
