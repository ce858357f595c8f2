// Package retry provides a bounded retry combinator with exponential backoff
// for the network operations of the crawler.
//
// Whether an attempt is retried is decided by the error class from
// pkg/errors: Transient failures are retried, NotFound and Fatal failures
// return immediately, and context cancellation stops the loop.
//
// Basic usage:
//
//	meta, err := retry.DoWithResult(ctx, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Logger:      log,
//	}, func(ctx context.Context) (*pixiv.Artwork, error) {
//		return client.Resolve(ctx, id)
//	})
//
// When every attempt fails the returned error is an *ExhaustedError that
// still unwraps to the last failure, so errors.Classify keeps working on it.
package retry
