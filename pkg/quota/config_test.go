package quota

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2rkf/nekoi/store"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	assert.Equal(t, int64(1000), config.BaseLimit)
	assert.Equal(t, "atomic", config.ExpiryMode)
	assert.Equal(t, "redis", config.Store)
	assert.Equal(t, "redis://127.0.0.1/", config.Redis.URL)
	assert.Equal(t, "ip", config.HTTP.KeyExtractor)
	assert.Equal(t, "unavailable", config.HTTP.FailurePolicy)
	assert.NoError(t, config.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "memory store", mutate: func(c *Config) { c.Store = "memory" }},
		{name: "two-step", mutate: func(c *Config) { c.ExpiryMode = "two-step" }},
		{name: "open policy", mutate: func(c *Config) { c.HTTP.FailurePolicy = "open" }},
		{name: "timeout", mutate: func(c *Config) { c.Redis.Timeout = "250ms" }},
		{name: "zero limit", mutate: func(c *Config) { c.BaseLimit = 0 }, wantErr: true},
		{name: "negative limit", mutate: func(c *Config) { c.BaseLimit = -5 }, wantErr: true},
		{name: "unknown expiry", mutate: func(c *Config) { c.ExpiryMode = "sometimes" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "etcd" }, wantErr: true},
		{name: "bad timeout", mutate: func(c *Config) { c.Redis.Timeout = "soon" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Redis.Timeout = "-1s" }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.HTTP.FailurePolicy = "maybe" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		content := `
base_limit: 250
redis:
  addr: "cache:6379"
  timeout: "500ms"
http:
  key_extractor: "header:X-API-Key"
  extended_header: "X-Extended-Tier"
  excluded_paths:
    - /api/ping
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		config, err := LoadConfigFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, int64(250), config.BaseLimit)
		assert.Equal(t, "atomic", config.ExpiryMode)
		assert.Equal(t, "cache:6379", config.Redis.Addr)
		assert.Equal(t, "header:X-API-Key", config.HTTP.KeyExtractor)
		assert.Equal(t, "X-Extended-Tier", config.HTTP.ExtendedHeader)
		assert.Equal(t, "unavailable", config.HTTP.FailurePolicy)
		assert.Equal(t, []string{"/api/ping"}, config.HTTP.ExcludedPaths)

		sc := config.Redis.StoreConfig()
		assert.Equal(t, 500*time.Millisecond, sc.OpTimeout)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("base_limit: 0\n"), 0o644))

		_, err := LoadConfigFromFile(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("base_limit: [1, 2\n"), 0o644))

		_, err := LoadConfigFromFile(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFromFile(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfigApplyEnv(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	t.Run("overrides", func(t *testing.T) {
		config := NewConfig()
		err := config.ApplyEnv(env(map[string]string{
			"RATE_LIMIT_PER_DAY":     "42",
			"RATE_LIMIT_EXPIRY_MODE": "two-step",
			"RATE_LIMIT_STORE":       "memory",
			"REDIS_URL":              "redis://cache:6380/2",
			"REDIS_PASSWORD":         "hunter2",
			"REDIS_TIMEOUT":          "1s",
		}))
		require.NoError(t, err)

		assert.Equal(t, int64(42), config.BaseLimit)
		assert.Equal(t, "two-step", config.ExpiryMode)
		assert.Equal(t, "memory", config.Store)
		assert.Equal(t, "redis://cache:6380/2", config.Redis.URL)
		assert.Equal(t, "hunter2", config.Redis.Password)
		assert.Equal(t, "1s", config.Redis.Timeout)
	})

	t.Run("addr replaces url", func(t *testing.T) {
		config := NewConfig()
		require.NoError(t, config.ApplyEnv(env(map[string]string{"REDIS_ADDR": "10.0.0.5:6379"})))

		assert.Empty(t, config.Redis.URL)
		assert.Equal(t, "10.0.0.5:6379", config.Redis.Addr)
	})

	t.Run("empty environment keeps defaults", func(t *testing.T) {
		config := NewConfig()
		require.NoError(t, config.ApplyEnv(env(nil)))
		assert.Equal(t, NewConfig(), config)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, v := range []string{"lots", "0", "-3"} {
			config := NewConfig()
			err := config.ApplyEnv(env(map[string]string{"RATE_LIMIT_PER_DAY": v}))
			assert.ErrorIs(t, err, ErrInvalidConfig, "value %q", v)
		}
	})
}

func TestConfigOpenStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		config := NewConfig()
		config.Store = "memory"

		s, closeFn, err := config.OpenStore()
		require.NoError(t, err)
		defer closeFn()

		assert.IsType(t, &store.MemoryStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		// the client dials lazily, so no server is needed here
		s, closeFn, err := NewConfig().OpenStore()
		require.NoError(t, err)
		defer closeFn()

		assert.IsType(t, &store.RedisStore{}, s)
	})

	t.Run("bad redis url", func(t *testing.T) {
		config := NewConfig()
		config.Redis.URL = "http://not-redis"

		_, _, err := config.OpenStore()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestWithConfig(t *testing.T) {
	config := NewConfig()
	config.BaseLimit = 7
	config.ExpiryMode = "two-step"

	limiter, err := NewLimiter(WithStore(store.NewMemoryStore()), WithConfig(config))
	require.NoError(t, err)

	rl := limiter.(*rateLimiter)
	assert.Equal(t, int64(7), rl.baseLimit)
	assert.Equal(t, ExpiryTwoStep, rl.expiryMode)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_DAY", "300")
	t.Setenv("REDIS_URL", "redis://127.0.0.1:6390/")
	t.Setenv("REDIS_ADDR", "")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int64(300), config.BaseLimit)
	assert.Equal(t, "redis://127.0.0.1:6390/", config.Redis.URL)
}
