// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Output  OutputConfig  `mapstructure:"output"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// InputConfig locates the link list.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig sets result, failed-list and shard locations.
type OutputConfig struct {
	Path       string `mapstructure:"path"`
	FailedPath string `mapstructure:"failed_path"`
	ShardDir   string `mapstructure:"shard_dir"`
}

// PoolConfig governs worker-pool behavior.
type PoolConfig struct {
	Workers         int `mapstructure:"workers"`
	RetryLimit      int `mapstructure:"retry_limit"`
	ThrottleDelayMs int `mapstructure:"throttle_delay_ms"`
}

// FetchConfig configures the default extractor.
type FetchConfig struct {
	Proxy          string `mapstructure:"proxy"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LedgerConfig selects and locates the checkpoint ledger backend.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKMILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.path", "result.csv")
	v.SetDefault("output.failed_path", "failed.txt")
	v.SetDefault("output.shard_dir", "shards")
	v.SetDefault("pool.workers", runtime.NumCPU())
	v.SetDefault("pool.retry_limit", 2)
	v.SetDefault("pool.throttle_delay_ms", 0)
	v.SetDefault("fetch.user_agent", "linkmill/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.path", "completed.txt")
	v.SetDefault("ledger.table", "completed_links")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}
	if c.Pool.RetryLimit < 0 {
		return fmt.Errorf("pool.retry_limit must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Output.Path == "" || c.Output.FailedPath == "" || c.Output.ShardDir == "" {
		return fmt.Errorf("output.path, output.failed_path and output.shard_dir are required")
	}
	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the file backend")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// FetchTimeout converts the configured seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ThrottleDelay converts the configured milliseconds into a duration.
func (c Config) ThrottleDelay() time.Duration {
	return time.Duration(c.Pool.ThrottleDelayMs) * time.Millisecond
}
