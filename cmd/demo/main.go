package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"

	"github.com/2rkf/nekoi/api"
	"github.com/2rkf/nekoi/cmd/demo/handlers"
	"github.com/2rkf/nekoi/internal/logger"
	"github.com/2rkf/nekoi/middleware"
	"github.com/2rkf/nekoi/pkg/quota"
)

type CLI struct {
	Port     int    `help:"Port to listen on." default:"3030" env:"PORT"`
	Config   string `short:"c" help:"Path to YAML config file." type:"path" default:"cmd/demo/config.yaml"`
	BaseURL  string `name:"base-url" help:"Public URL used in image links." default:"http://localhost:3030" env:"BASE_URL"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"debug"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("nekoi-demo"),
		kong.Description("Demo image API protected by daily quotas."),
	)

	log, err := logger.Init(cli.LogLevel, "text", os.Stderr)
	if err != nil {
		slog.Error("invalid log settings", "error", err)
		os.Exit(1)
	}

	if err := run(cli, log); err != nil {
		log.Error("demo server failed", "error", err)
		os.Exit(1)
	}
}

func run(cli CLI, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := quota.LoadConfigFromFile(cli.Config)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}

	counter, closeStore, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, err := quota.NewLimiter(
		quota.WithStore(counter),
		quota.WithConfig(cfg),
		quota.WithLogger(log),
	)
	if err != nil {
		return err
	}

	mwCfg, err := middleware.FromHTTPConfig(limiter, cfg.HTTP, log)
	if err != nil {
		return err
	}

	protected := chi.NewRouter()
	protected.Get("/me/quota", handlers.Quota)
	protected.Get("/{content_type}/{category}", handlers.RandomImage(cli.BaseURL))

	router := api.NewRouter(api.RouterConfig{
		Handler:   api.NewHandler(limiter, log, nil),
		RateLimit: middleware.RateLimit(mwCfg),
		Protected: protected,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cli.Port)),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("demo listening",
		"addr", srv.Addr,
		"try", "curl -i -H 'Authorization: Bearer demo' http://localhost:"+strconv.Itoa(cli.Port)+"/api/v1/sfw/neko")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
