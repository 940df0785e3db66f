package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/2rkf/nekoi/core"
	"github.com/2rkf/nekoi/pkg/quota"
)

// FailurePolicy decides what the middleware does when the counter store
// cannot be reached. The limiter itself never picks one.
type FailurePolicy int

const (
	// FailUnavailable answers 503 with Retry-After: 1.
	FailUnavailable FailurePolicy = iota
	// FailOpen lets the request through without quota headers.
	FailOpen
	// FailClosed rejects the request with 429.
	FailClosed
)

// ParseFailurePolicy parses "unavailable", "open" or "closed". Empty means
// FailUnavailable.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "", "unavailable":
		return FailUnavailable, nil
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailUnavailable, fmt.Errorf("%w: unknown failure policy: %s", ErrInvalidConfig, s)
	}
}

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return "unavailable"
	}
}

// Config for the rate limiting middleware
type Config struct {
	Limiter       quota.Limiter    // Required
	KeyExtractor  KeyExtractor     // Optional: defaults to ExtractIP
	Extended      ExtendedSelector // Optional: defaults to ExtendedNever
	FailurePolicy FailurePolicy    // Zero value is FailUnavailable
	ExcludedPaths []string         // Paths that bypass the limiter
	Logger        *slog.Logger     // Optional: defaults to slog.Default()
}

// FromHTTPConfig builds a middleware Config from the http section of the
// quota configuration.
func FromHTTPConfig(limiter quota.Limiter, cfg quota.HTTPConfig, logger *slog.Logger) (Config, error) {
	extractor, err := ParseKeyExtractorConfig(cfg.KeyExtractor)
	if err != nil {
		return Config{}, err
	}

	policy, err := ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return Config{}, err
	}

	extended := ExtendedNever()
	if cfg.ExtendedHeader != "" {
		extended = ExtendedHeader(cfg.ExtendedHeader)
	}

	return Config{
		Limiter:       limiter,
		KeyExtractor:  extractor,
		Extended:      extended,
		FailurePolicy: policy,
		ExcludedPaths: cfg.ExcludedPaths,
		Logger:        logger,
	}, nil
}

type statusKey struct{}

// StatusFromContext returns the quota decision the middleware made for the
// request, or nil when the request bypassed the limiter.
func StatusFromContext(ctx context.Context) *quota.Status {
	if st, ok := ctx.Value(statusKey{}).(*quota.Status); ok {
		return st
	}
	return nil
}

// Response is the JSON envelope of every error the middleware writes.
type Response struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Success bool   `json:"success"`
}

// RateLimit returns middleware that counts every request against its
// identity's daily quota.
func RateLimit(cfg Config) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limiter == nil {
		cfg.Logger.Warn("rate limiting disabled: no limiter configured")
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = ExtractIP()
	}
	if cfg.Extended == nil {
		cfg.Extended = ExtendedNever()
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := excluded[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := cfg.KeyExtractor(r)
			if err != nil {
				cfg.Logger.Debug("rate limit identity missing", "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusBadRequest, "Unable to identify client.")
				return
			}

			extended := cfg.Extended(r)
			st, err := cfg.Limiter.Check(r.Context(), identity, extended)
			if err != nil {
				cfg.onStoreFailure(w, r, next, identity, err)
				return
			}

			SetHeaders(w.Header(), st)
			r = r.WithContext(context.WithValue(r.Context(), statusKey{}, st))

			if !st.Allowed {
				secs, _ := st.RetryAfterSeconds()
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				writeJSON(w, http.StatusTooManyRequests, "Daily request limit reached.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (cfg Config) onStoreFailure(w http.ResponseWriter, r *http.Request, next http.Handler, identity string, err error) {
	cfg.Logger.Error("rate limit check failed",
		"identity", identity,
		"policy", cfg.FailurePolicy.String(),
		"error", err)

	switch {
	case errors.Is(err, context.Canceled):
		// client went away; nobody is reading the response
		return
	case cfg.FailurePolicy == FailOpen:
		next.ServeHTTP(w, r)
	case cfg.FailurePolicy == FailClosed:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, "Rate limit could not be verified.")
	default:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, "Rate limit service unavailable.")
	}
}

// SetHeaders writes the X-RateLimit-* headers for st. X-RateLimit-Reset is
// the number of seconds until the window resets.
func SetHeaders(h http.Header, st *core.Status) {
	h.Set("X-RateLimit-Limit", strconv.FormatInt(st.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(st.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(st.ResetAfterSeconds(), 10))
}

func writeJSON(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Message: message,
		Status:  code,
		Success: false,
	})
}
