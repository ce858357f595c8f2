// Package ratelimit paces requests to the pixiv metadata API.
//
// TokenBucket refills continuously and allows short bursts:
//
//	limiter := ratelimit.NewTokenBucket(60, 10) // 60/min, bursts of 10
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
// A zero rate yields Unlimited, which never blocks.
package ratelimit
