// Package nekoi re-exports the pieces most programs need to put a daily
// per-identity quota in front of an HTTP service.
package nekoi

import (
	"net/http"

	"github.com/2rkf/nekoi/middleware"
	"github.com/2rkf/nekoi/pkg/quota"
)

type (
	Limiter = quota.Limiter
	Status  = quota.Status
	Config  = quota.Config
)

var (
	NewLimiter = quota.NewLimiter
	NewConfig  = quota.NewConfig
	RateLimit  = middleware.RateLimit

	ErrStoreUnavailable = quota.ErrStoreUnavailable
)

// New builds a limiter and its HTTP middleware from cfg. The returned close
// function releases the counter store.
func New(cfg *Config, opts ...quota.Option) (Limiter, func(http.Handler) http.Handler, func() error, error) {
	counter, closeStore, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, nil, err
	}

	opts = append([]quota.Option{quota.WithStore(counter), quota.WithConfig(cfg)}, opts...)
	limiter, err := quota.NewLimiter(opts...)
	if err != nil {
		_ = closeStore()
		return nil, nil, nil, err
	}

	mwCfg, err := middleware.FromHTTPConfig(limiter, cfg.HTTP, nil)
	if err != nil {
		_ = closeStore()
		return nil, nil, nil, err
	}
	return limiter, middleware.RateLimit(mwCfg), closeStore, nil
}
