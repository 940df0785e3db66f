package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nekoi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_limit: 10\nstore: memory\n"), 0o644))

	t.Setenv("RATE_LIMIT_PER_DAY", "25")

	cli := &CLI{Config: path}
	cfg, err := cli.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.BaseLimit, "environment wins over the file")
	assert.Equal(t, "memory", cfg.Store)
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_DAY", "many")

	_, err := (&CLI{}).loadConfig()
	assert.Error(t, err)
}

func TestOpenLimiter_Memory(t *testing.T) {
	t.Setenv("RATE_LIMIT_STORE", "memory")
	t.Setenv("RATE_LIMIT_PER_DAY", "1")

	cfg, err := (&CLI{}).loadConfig()
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, closeStore, err := openLimiter(cfg, log)
	require.NoError(t, err)
	defer closeStore()

	ctx := context.Background()
	st, err := limiter.Check(ctx, "cli-user", false)
	require.NoError(t, err)
	assert.True(t, st.Allowed)

	st, err = limiter.Check(ctx, "cli-user", false)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
}

func TestCLI_Parse(t *testing.T) {
	tests := []struct {
		args    []string
		command string
	}{
		{args: []string{}, command: "serve"},
		{args: []string{"--port", "8080"}, command: "serve"},
		{args: []string{"check", "alice", "--extended"}, command: "check <identity>"},
		{args: []string{"usage", "bob"}, command: "usage <identity>"},
		{args: []string{"reset", "carol"}, command: "reset <identity>"},
		{args: []string{"version"}, command: "version"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Name("nekoi-ratelimit"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
			require.NoError(t, err)

			ctx, err := parser.Parse(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.command, ctx.Command())
		})
	}
}

func TestCommands_MemoryStore(t *testing.T) {
	t.Setenv("RATE_LIMIT_STORE", "memory")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cli := &CLI{}

	require.NoError(t, (&CheckCmd{Identity: "dave", Extended: true}).Run(cli, log))
	require.NoError(t, (&UsageCmd{Identity: "dave"}).Run(cli, log))
	require.NoError(t, (&ResetCmd{Identity: "dave"}).Run(cli, log))
}
