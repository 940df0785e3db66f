package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/2rkf/nekoi/internal/logger"
	"github.com/2rkf/nekoi/pkg/quota"
)

type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Start the rate limiting service."`
	Check   CheckCmd   `cmd:"" help:"Count one request for an identity and print the decision."`
	Usage   UsageCmd   `cmd:"" help:"Print an identity's usage without counting a request."`
	Reset   ResetCmd   `cmd:"" help:"Delete an identity's counter for the current window."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to YAML config file." type:"path" env:"NEKOI_CONFIG"`
	EnvFile   string `name:"env-file" help:"Dotenv file to load before reading the environment." default:".env"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"LOG_LEVEL"`
	LogFormat string `help:"Log format (text, json)." default:"text" env:"LOG_FORMAT"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("nekoi-ratelimit %s\n", version)
	return nil
}

// loadConfig reads the optional YAML file and overlays the environment.
func (cli *CLI) loadConfig() (*quota.Config, error) {
	cfg := quota.NewConfig()
	if cli.Config != "" {
		var err error
		if cfg, err = quota.LoadConfigFromFile(cli.Config); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLimiter builds the store and limiter described by cfg.
func openLimiter(cfg *quota.Config, log *slog.Logger, opts ...quota.Option) (quota.Limiter, func() error, error) {
	counter, closeStore, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, err
	}

	opts = append([]quota.Option{
		quota.WithStore(counter),
		quota.WithConfig(cfg),
		quota.WithLogger(log),
	}, opts...)

	limiter, err := quota.NewLimiter(opts...)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return limiter, closeStore, nil
}

func main() {
	cli := CLI{}
	// .env is located before flag parsing so its values can feed env-tagged flags.
	envFile := ".env"
	for i, arg := range os.Args {
		if arg == "--env-file" && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
		}
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", envFile, err)
	}

	ctx := kong.Parse(&cli,
		kong.Name("nekoi-ratelimit"),
		kong.Description("Daily per-identity request quotas backed by Redis."),
		kong.UsageOnError(),
	)

	log, err := logger.Init(cli.LogLevel, cli.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(&cli, log)
	ctx.FatalIfErrorf(err)
}
