package quota

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2rkf/nekoi/core"
	"github.com/2rkf/nekoi/store"
)

// Config holds the quota configuration of a deployment.
type Config struct {
	// BaseLimit is the standard tier's requests per day. The extended tier
	// gets ten times this.
	BaseLimit int64 `yaml:"base_limit"`

	// ExpiryMode selects how the counter TTL is armed: "atomic" or "two-step".
	ExpiryMode string `yaml:"expiry_mode,omitempty"`

	// Store selects the counter backend: "redis" (default) or "memory".
	Store string `yaml:"store,omitempty"`

	Redis RedisConfig `yaml:"redis,omitempty"`
	HTTP  HTTPConfig  `yaml:"http,omitempty"`
}

// RedisConfig is the YAML form of store.RedisConfig.
type RedisConfig struct {
	URL      string `yaml:"url,omitempty"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	PoolSize int    `yaml:"pool_size,omitempty"`

	// Timeout bounds every store round-trip, e.g. "250ms".
	Timeout string `yaml:"timeout,omitempty"`
}

// HTTPConfig configures the request-handling layer that sits in front of the
// limiter.
type HTTPConfig struct {
	// KeyExtractor specifies how to identify clients
	// Examples: "ip", "ip-proxy", "header:X-API-Key", "bearer"
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// ExtendedHeader names a request header whose truthy value selects the
	// extended tier. Empty disables the extended tier.
	ExtendedHeader string `yaml:"extended_header,omitempty"`

	// FailurePolicy decides what happens when the store is unavailable:
	// "unavailable" (503, default), "open" or "closed".
	FailurePolicy string `yaml:"failure_policy,omitempty"`

	// ExcludedPaths bypass rate limiting entirely.
	ExcludedPaths []string `yaml:"excluded_paths,omitempty"`
}

// NewConfig creates a new Config with the production defaults.
func NewConfig() *Config {
	return &Config{
		BaseLimit:  core.DefaultBaseLimit,
		ExpiryMode: string(ExpiryAtomic),
		Store:      "redis",
		Redis: RedisConfig{
			URL: "redis://127.0.0.1/",
		},
		HTTP: HTTPConfig{
			KeyExtractor:  "ip",
			FailurePolicy: "unavailable",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file. Fields missing
// from the file keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigFromEnv returns the defaults overlaid with the process
// environment.
func LoadConfigFromEnv() (*Config, error) {
	config := NewConfig()
	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overlays environment variables onto the configuration:
// RATE_LIMIT_PER_DAY, RATE_LIMIT_EXPIRY_MODE, RATE_LIMIT_STORE, REDIS_URL,
// REDIS_ADDR, REDIS_PASSWORD and REDIS_TIMEOUT.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("RATE_LIMIT_PER_DAY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: RATE_LIMIT_PER_DAY: %v", ErrInvalidConfig, err)
		}
		c.BaseLimit = n
	}
	if v := getenv("RATE_LIMIT_EXPIRY_MODE"); v != "" {
		c.ExpiryMode = v
	}
	if v := getenv("RATE_LIMIT_STORE"); v != "" {
		c.Store = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.URL = ""
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("REDIS_TIMEOUT"); v != "" {
		c.Redis.Timeout = v
	}

	return c.Validate()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseLimit <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, ErrInvalidLimit)
	}

	if _, err := ParseExpiryMode(c.ExpiryMode); err != nil {
		return err
	}

	switch strings.ToLower(c.Store) {
	case "", "redis", "memory":
	default:
		return fmt.Errorf("%w: unknown store backend: %s", ErrInvalidConfig, c.Store)
	}

	if _, err := c.Redis.timeout(); err != nil {
		return err
	}

	switch strings.ToLower(c.HTTP.FailurePolicy) {
	case "", "unavailable", "open", "closed":
	default:
		return fmt.Errorf("%w: unknown failure policy: %s", ErrInvalidConfig, c.HTTP.FailurePolicy)
	}

	return nil
}

func (r RedisConfig) timeout() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid redis timeout %q", ErrInvalidConfig, r.Timeout)
	}
	return d, nil
}

// StoreConfig converts the YAML form into a store.RedisConfig.
func (r RedisConfig) StoreConfig() store.RedisConfig {
	timeout, _ := r.timeout()
	return store.RedisConfig{
		URL:       r.URL,
		Addr:      r.Addr,
		Password:  r.Password,
		DB:        r.DB,
		PoolSize:  r.PoolSize,
		OpTimeout: timeout,
	}
}

// OpenStore builds the counter store selected by the configuration. The
// returned close function releases it.
func (c *Config) OpenStore() (store.Counter, func() error, error) {
	if strings.EqualFold(c.Store, "memory") {
		return store.NewMemoryStore(), func() error { return nil }, nil
	}

	s, err := store.NewRedisStore(c.Redis.StoreConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return s, s.Close, nil
}
