package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vocwallet/retry"
)

const (
	DefaultRPCEndpoint    = "http://127.0.0.1:9095/rpc"
	DefaultMaxAttempts    = 5
	DefaultIntervalMillis = 3000
	DefaultService        = "vocwallet"

	// EnvRPCURL overrides RPCEndpoint when set.
	EnvRPCURL = "VOCWALLET_RPC_URL"
	// EnvRPCToken overrides AuthToken when set.
	EnvRPCToken = "VOCWALLET_RPC_TOKEN"
)

type Config struct {
	RPCEndpoint  string `toml:"RPCEndpoint"`
	AuthToken    string `toml:"AuthToken,omitempty"`
	KeystorePath string `toml:"KeystorePath,omitempty"`
	Treasurer    bool   `toml:"Treasurer"`
	// DataDir holds the faucet issuer database. Empty disables sequential
	// faucet identifiers.
	DataDir   string          `toml:"DataDir,omitempty"`
	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// RetryConfig bounds the polling loop that waits for submitted changes.
type RetryConfig struct {
	MaxAttempts    int   `toml:"MaxAttempts"`
	IntervalMillis int64 `toml:"IntervalMillis"`
}

// RateLimitConfig paces gateway requests. Zero RPS disables pacing.
type RateLimitConfig struct {
	RPS   float64 `toml:"RPS"`
	Burst int     `toml:"Burst"`
}

type LogConfig struct {
	Service string `toml:"Service"`
	Env     string `toml:"Env,omitempty"`
	Level   string `toml:"Level,omitempty"`
}

// TelemetryConfig controls the OTLP exporters. Both are off by default.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint,omitempty"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the OTEL_EXPORTER_OTLP_HEADERS form "k=v,k2=v2".
	Headers string `toml:"Headers,omitempty"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RPCEndpoint: DefaultRPCEndpoint,
		Retry: RetryConfig{
			MaxAttempts:    DefaultMaxAttempts,
			IntervalMillis: DefaultIntervalMillis,
		},
		Log: LogConfig{Service: DefaultService},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := persist(path, cfg); err != nil {
				return nil, fmt.Errorf("config: write default %s: %w", path, err)
			}
		} else if err != nil {
			return nil, err
		} else {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
			}
		}
	}

	applyEnv(cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		cfg.RPCEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRPCToken)); v != "" {
		cfg.AuthToken = v
	}
}

func (c *Config) applyDefaults() {
	c.RPCEndpoint = strings.TrimSpace(c.RPCEndpoint)
	if c.RPCEndpoint == "" {
		c.RPCEndpoint = DefaultRPCEndpoint
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if strings.TrimSpace(c.Log.Service) == "" {
		c.Log.Service = DefaultService
	}
}

// Validate rejects values the wallet cannot operate with.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry: MaxAttempts must be >= 1")
	}
	if c.Retry.IntervalMillis < 0 {
		return fmt.Errorf("config: retry: IntervalMillis must be >= 0")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("config: rate_limit: RPS must be >= 0")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate_limit: Burst must be >= 0")
	}
	return nil
}

// RetryPolicy converts the retry section into a polling policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Interval:    time.Duration(c.Retry.IntervalMillis) * time.Millisecond,
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
