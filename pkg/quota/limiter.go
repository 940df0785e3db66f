package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2rkf/nekoi/core"
	"github.com/2rkf/nekoi/store"
)

// Status is the result of a quota check.
type Status = core.Status

// Limiter is the main interface for daily quota enforcement.
//
// Implementations hold no per-identity state: every call goes to the shared
// counter store, which makes the quota global across server instances.
type Limiter interface {
	// Check counts one request for identity in the current window and
	// reports whether it may proceed. extended selects the 10x tier for this
	// call only; both tiers share one counter.
	Check(ctx context.Context, identity string, extended bool) (*Status, error)

	// Peek reports the current window without counting a request. Allowed
	// tells whether the next request would be let through.
	Peek(ctx context.Context, identity string, extended bool) (*Status, error)

	// Reset deletes identity's counter for the current window.
	Reset(ctx context.Context, identity string) error

	// Ping probes the counter store.
	Ping(ctx context.Context) error
}

// rateLimiter is the concrete implementation of Limiter.
type rateLimiter struct {
	store      store.Counter
	baseLimit  int64
	expiryMode ExpiryMode
	now        func() time.Time
	logger     *slog.Logger
	recorder   Recorder
}

// NewLimiter creates a new Limiter with the given options. A store is
// required; everything else has a default.
//
// Example:
//
//	limiter, err := NewLimiter(
//	    WithStore(redisStore),
//	    WithBaseLimit(1000),
//	)
func NewLimiter(opts ...Option) (Limiter, error) {
	rl := &rateLimiter{
		baseLimit:  core.DefaultBaseLimit,
		expiryMode: ExpiryAtomic,
		now:        time.Now,
		logger:     slog.Default(),
		recorder:   NoopRecorder{},
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if rl.store == nil {
		return nil, ErrNilStore
	}

	return rl, nil
}

// Check implements the fixed-window algorithm: derive the window from the
// wall clock, increment its counter, arm the TTL on first use, compare.
func (rl *rateLimiter) Check(ctx context.Context, identity string, extended bool) (*Status, error) {
	start := time.Now()
	tier := core.TierFor(extended)
	limit := core.EffectiveLimit(rl.baseLimit, tier)

	now := rl.now()
	window := core.WindowAt(now)
	ttl := window.TTL(now)
	key := window.Key(identity)

	usage, err := rl.increment(ctx, key, ttl)
	if err != nil {
		err = asUnavailable(err)
		rl.recorder.RecordStoreError(ctx, "check", err)
		rl.logger.Warn("quota check failed",
			"identity", identity,
			"key", key,
			"error", err)
		return nil, err
	}

	status := core.Evaluate(usage, limit, ttl)

	rl.recorder.RecordCheck(ctx, identity, tier, &status, time.Since(start))
	rl.logger.Debug("quota check",
		"identity", identity,
		"tier", tier.String(),
		"usage", usage,
		"limit", limit,
		"allowed", status.Allowed,
		"reset_after", ttl)

	return &status, nil
}

// increment bumps the window counter and makes sure it carries a TTL.
// Only the caller whose increment returned exactly 1 arms the expiry in
// two-step mode; the store's atomic INCR guarantees there is one such caller.
func (rl *rateLimiter) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if rl.expiryMode == ExpiryAtomic {
		if atomic, ok := rl.store.(store.AtomicCounter); ok {
			return atomic.IncrementWithExpiry(ctx, key, ttl)
		}
	}

	usage, err := rl.store.Increment(ctx, key)
	if err != nil {
		return 0, err
	}

	if usage == 1 {
		if err := rl.store.SetExpiry(ctx, key, ttl); err != nil {
			return 0, err
		}
	}

	return usage, nil
}

// Peek reads the current window without counting a request.
func (rl *rateLimiter) Peek(ctx context.Context, identity string, extended bool) (*Status, error) {
	inspector, ok := rl.store.(store.Inspector)
	if !ok {
		return nil, ErrUnsupported
	}

	limit := core.EffectiveLimit(rl.baseLimit, core.TierFor(extended))
	now := rl.now()
	window := core.WindowAt(now)

	usage, err := inspector.Get(ctx, window.Key(identity))
	if err != nil {
		err = asUnavailable(err)
		rl.recorder.RecordStoreError(ctx, "peek", err)
		return nil, err
	}

	status := core.Project(usage, limit, window.TTL(now))
	return &status, nil
}

// Reset deletes identity's counter for the current window.
func (rl *rateLimiter) Reset(ctx context.Context, identity string) error {
	inspector, ok := rl.store.(store.Inspector)
	if !ok {
		return ErrUnsupported
	}

	key := core.WindowAt(rl.now()).Key(identity)
	if err := inspector.Delete(ctx, key); err != nil {
		err = asUnavailable(err)
		rl.recorder.RecordStoreError(ctx, "reset", err)
		return err
	}

	rl.logger.Info("quota reset", "identity", identity, "key", key)
	return nil
}

// Ping probes the counter store.
func (rl *rateLimiter) Ping(ctx context.Context) error {
	if err := rl.store.Ping(ctx); err != nil {
		return asUnavailable(err)
	}
	return nil
}

// asUnavailable makes sure a failure from a third-party store still matches
// ErrStoreUnavailable.
func asUnavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
