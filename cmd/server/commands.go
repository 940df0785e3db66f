package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/2rkf/nekoi/api"
	"github.com/2rkf/nekoi/metrics"
	"github.com/2rkf/nekoi/pkg/quota"
)

type ServeCmd struct {
	Host            string        `help:"Address to bind." default:"::"`
	Port            int           `help:"Port to listen on." default:"3030" env:"PORT"`
	ShutdownTimeout time.Duration `name:"shutdown-timeout" help:"Grace period for in-flight requests." default:"10s"`
}

func (c *ServeCmd) Run(cli *CLI, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	stats := metrics.NewMetrics()
	otel, err := metrics.NewOTel()
	if err != nil {
		return err
	}
	defer otel.Shutdown(context.Background())

	limiter, closeStore, err := openLimiter(cfg, log, quota.WithRecorder(metrics.Fanout(stats, otel)))
	if err != nil {
		return err
	}
	defer closeStore()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := limiter.Ping(pingCtx); err != nil {
		// keep serving: /check answers 503 until the store comes back
		log.Warn("counter store not reachable at startup", "store", cfg.Store, "error", err)
	}
	cancel()

	router := api.NewRouter(api.RouterConfig{
		Handler:    api.NewHandler(limiter, log, stats.Reset),
		Metrics:    stats,
		Prometheus: otel.Handler(),
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", srv.Addr,
			"base_limit", cfg.BaseLimit,
			"expiry_mode", cfg.ExpiryMode,
			"store", cfg.Store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type CheckCmd struct {
	Identity string `arg:"" help:"Identity to count."`
	Extended bool   `help:"Use the extended (10x) tier."`
}

func (c *CheckCmd) Run(cli *CLI, log *slog.Logger) error {
	return withLimiter(cli, log, func(ctx context.Context, l quota.Limiter) error {
		st, err := l.Check(ctx, c.Identity, c.Extended)
		if err != nil {
			return err
		}
		return printStatus(c.Identity, st)
	})
}

type UsageCmd struct {
	Identity string `arg:"" help:"Identity to inspect."`
	Extended bool   `help:"Report against the extended (10x) tier."`
}

func (c *UsageCmd) Run(cli *CLI, log *slog.Logger) error {
	return withLimiter(cli, log, func(ctx context.Context, l quota.Limiter) error {
		st, err := l.Peek(ctx, c.Identity, c.Extended)
		if err != nil {
			return err
		}
		return printStatus(c.Identity, st)
	})
}

type ResetCmd struct {
	Identity string `arg:"" help:"Identity whose counter is deleted."`
}

func (c *ResetCmd) Run(cli *CLI, log *slog.Logger) error {
	return withLimiter(cli, log, func(ctx context.Context, l quota.Limiter) error {
		if err := l.Reset(ctx, c.Identity); err != nil {
			return err
		}
		fmt.Printf("reset %s\n", c.Identity)
		return nil
	})
}

func withLimiter(cli *CLI, log *slog.Logger, fn func(context.Context, quota.Limiter) error) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	limiter, closeStore, err := openLimiter(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return fn(ctx, limiter)
}

func printStatus(identity string, st *quota.Status) error {
	out := map[string]any{
		"identity":    identity,
		"allowed":     st.Allowed,
		"limit":       st.Limit,
		"remaining":   st.Remaining,
		"reset_after": st.ResetAfterSeconds(),
	}
	if secs, ok := st.RetryAfterSeconds(); ok {
		out["retry_after"] = secs
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
