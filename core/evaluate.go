package core

import "time"

// Evaluate turns the post-increment usage of a window into a Status.
// The limit is inclusive: usage == limit is still allowed.
func Evaluate(usage, limit int64, ttl time.Duration) Status {
	if usage <= limit {
		return Status{
			Allowed:    true,
			Limit:      limit,
			Remaining:  limit - usage,
			ResetAfter: ttl,
		}
	}

	retry := ttl
	return Status{
		Allowed:    false,
		RetryAfter: &retry,
		Limit:      limit,
		Remaining:  0,
		ResetAfter: ttl,
	}
}

// Project describes the window without consuming quota: Allowed reports
// whether the next request would be let through.
func Project(usage, limit int64, ttl time.Duration) Status {
	if usage < limit {
		return Evaluate(usage, limit, ttl)
	}
	return Evaluate(limit+1, limit, ttl)
}
