package core

import "time"

const (
	// WindowLength is the fixed quota window: one UTC-epoch aligned day.
	WindowLength = 24 * time.Hour

	// ExtendedMultiplier scales the base limit for the extended tier.
	ExtendedMultiplier = 10

	// DefaultBaseLimit is the standard tier's requests per window.
	DefaultBaseLimit int64 = 1000

	// KeyPrefix is the namespace of counter keys in the shared store.
	KeyPrefix = "ratelimit:"
)

// Tier selects which limit applies to a single check
type Tier int

const (
	TierStandard Tier = iota
	TierExtended
)

// TierFor maps the caller-supplied extended flag to a Tier.
func TierFor(extended bool) Tier {
	if extended {
		return TierExtended
	}
	return TierStandard
}

func (t Tier) String() string {
	if t == TierExtended {
		return "extended"
	}
	return "standard"
}

// EffectiveLimit returns the limit used for a check under the given tier.
func EffectiveLimit(base int64, tier Tier) int64 {
	if tier == TierExtended {
		return base * ExtendedMultiplier
	}
	return base
}

// Status is the outcome of a single quota check. It is never mutated after
// being returned.
type Status struct {
	Allowed    bool           // Whether the request may proceed
	RetryAfter *time.Duration // Time until the window resets; nil when allowed
	Limit      int64          // Effective limit after the tier multiplier
	Remaining  int64          // Limit minus usage, floored at 0
	ResetAfter time.Duration  // Time until the current window ends
}

// RetryAfterSeconds reports the retry hint in whole seconds and whether one is set.
func (s *Status) RetryAfterSeconds() (int64, bool) {
	if s == nil || s.RetryAfter == nil {
		return 0, false
	}
	return int64(*s.RetryAfter / time.Second), true
}

// ResetAfterSeconds returns ResetAfter in whole seconds.
func (s *Status) ResetAfterSeconds() int64 {
	if s == nil {
		return 0
	}
	return int64(s.ResetAfter / time.Second)
}
