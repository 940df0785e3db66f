// Package quota enforces daily per-identity request quotas against a shared
// counter store.
//
// Quotas use fixed windows of one day aligned to the Unix epoch (UTC). Each
// identity has one counter per window, stored under
//
//	ratelimit:<identity>:<window start in epoch seconds>
//
// The counter expires by itself at the end of the window, so no cleanup
// process is needed. Because all state lives in the store, every server
// instance sharing it enforces the same global quota.
//
// # Quick Start
//
//	redisStore, err := store.NewRedisStore(store.RedisConfig{URL: "redis://127.0.0.1/"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	limiter, err := quota.NewLimiter(
//	    quota.WithStore(redisStore),
//	    quota.WithBaseLimit(1000), // requests per day
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	status, err := limiter.Check(ctx, "alice", false)
//	if errors.Is(err, quota.ErrStoreUnavailable) {
//	    // answer 503: neither allow nor deny without the store
//	}
//	if !status.Allowed {
//	    fmt.Printf("quota exhausted, retry in %v\n", *status.RetryAfter)
//	}
//
// # Tiers
//
// Every call picks its tier. The extended tier multiplies the base limit by
// ten. Tiers are not stored: both read the same counter, so usage made under
// one tier counts against the other.
//
// # Status
//
//   - Allowed: usage (including this request) is at most the limit
//   - Limit: effective limit for the chosen tier
//   - Remaining: limit minus usage, never negative
//   - ResetAfter: time left in the window, recomputed from the wall clock on
//     every call
//   - RetryAfter: equal to ResetAfter, only set when denied
//
// # Expiry
//
// With ExpiryAtomic (the default) a store implementing store.AtomicCounter
// increments and arms the TTL in one operation; on Redis this is a Lua
// script. The TTL is armed when the counter is created or found without one,
// and never extended afterwards.
//
// ExpiryTwoStep issues INCR and then, only when it returned 1, EXPIRE. This
// matches older deployments but a crash between the two calls leaves a
// counter that never expires.
//
// # Errors
//
// Store failures, timeouts and cancellations are returned as errors matching
// ErrStoreUnavailable. The limiter never turns them into an allow or a deny
// and never retries: a retried INCR could count a request twice.
package quota
