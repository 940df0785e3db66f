package quota

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2rkf/nekoi/store"
)

// Option is a functional option for configuring a Limiter.
type Option func(*rateLimiter) error

// ExpiryMode selects how a window's counter gets its TTL.
type ExpiryMode string

const (
	// ExpiryAtomic increments and arms the TTL in one store operation when
	// the store supports it, falling back to ExpiryTwoStep otherwise.
	ExpiryAtomic ExpiryMode = "atomic"

	// ExpiryTwoStep increments, then arms the TTL only when the increment
	// returned 1. A crash between the two calls leaves a counter without TTL.
	ExpiryTwoStep ExpiryMode = "two-step"
)

// ParseExpiryMode parses a configuration string; empty means ExpiryAtomic.
func ParseExpiryMode(s string) (ExpiryMode, error) {
	switch ExpiryMode(strings.ToLower(s)) {
	case "", ExpiryAtomic:
		return ExpiryAtomic, nil
	case ExpiryTwoStep:
		return ExpiryTwoStep, nil
	default:
		return "", fmt.Errorf("%w: unknown expiry mode: %s", ErrInvalidConfig, s)
	}
}

// WithStore sets the counter store. It is required.
func WithStore(s store.Counter) Option {
	return func(rl *rateLimiter) error {
		if s == nil {
			return ErrNilStore
		}
		rl.store = s
		return nil
	}
}

// WithBaseLimit sets the standard tier's requests per day.
func WithBaseLimit(limit int64) Option {
	return func(rl *rateLimiter) error {
		if limit <= 0 {
			return ErrInvalidLimit
		}
		rl.baseLimit = limit
		return nil
	}
}

// WithConfig applies the limit and expiry mode of a Config.
func WithConfig(config *Config) Option {
	return func(rl *rateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		mode, err := ParseExpiryMode(config.ExpiryMode)
		if err != nil {
			return err
		}
		rl.baseLimit = config.BaseLimit
		rl.expiryMode = mode
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(rl *rateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		return WithConfig(config)(rl)
	}
}

// WithExpiryMode overrides how the counter TTL is armed.
func WithExpiryMode(mode ExpiryMode) Option {
	return func(rl *rateLimiter) error {
		parsed, err := ParseExpiryMode(string(mode))
		if err != nil {
			return err
		}
		rl.expiryMode = parsed
		return nil
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(rl *rateLimiter) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		rl.now = now
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rl *rateLimiter) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		rl.logger = logger
		return nil
	}
}

// WithRecorder installs a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(rl *rateLimiter) error {
		if recorder == nil {
			return fmt.Errorf("%w: recorder cannot be nil", ErrInvalidConfig)
		}
		rl.recorder = recorder
		return nil
	}
}
