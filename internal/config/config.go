// Package config loads shardcached settings from defaults, an optional
// config file, SHARDCACHED_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/IvanBrykalov/shardcached/internal/logging"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server" toml:"server"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache" toml:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" toml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Network       string        `mapstructure:"network" yaml:"network" toml:"network"`
	Address       string        `mapstructure:"address" yaml:"address" toml:"address"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
	MaxFrameBytes uint64        `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes" toml:"max_frame_bytes"`
}

type CacheConfig struct {
	MaxBytes int `mapstructure:"max_bytes" yaml:"max_bytes" toml:"max_bytes"`
	MaxLen   int `mapstructure:"max_len" yaml:"max_len" toml:"max_len"`
	Segments int `mapstructure:"segments" yaml:"segments" toml:"segments"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Address disables it.
type MetricsConfig struct {
	Address   string `mapstructure:"address" yaml:"address" toml:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace" toml:"namespace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" toml:"level"`
	Format string `mapstructure:"format" yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Network:       "tcp",
			Address:       "127.0.0.1:9090",
			MaxFrameBytes: 64 << 20,
		},
		Cache: CacheConfig{
			MaxBytes: 1 << 30,
			Segments: 10,
		},
		Metrics: MetricsConfig{
			Namespace: "shardcached",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Server.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		errs = append(errs, fmt.Sprintf("server.network must be tcp or unix, got %q", c.Server.Network))
	}
	if c.Server.Address == "" {
		errs = append(errs, "server.address must not be empty")
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, "server.idle_timeout must be non-negative")
	}
	if c.Server.MaxFrameBytes == 0 {
		errs = append(errs, "server.max_frame_bytes must be positive")
	}

	if c.Cache.Segments <= 0 {
		errs = append(errs, "cache.segments must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		errs = append(errs, "cache.max_bytes must be positive")
	} else if c.Cache.Segments > 0 && c.Cache.MaxBytes < c.Cache.Segments {
		errs = append(errs, "cache.max_bytes must be at least cache.segments")
	}
	if c.Cache.MaxLen < 0 {
		errs = append(errs, "cache.max_len must be non-negative")
	} else if c.Cache.MaxLen > 0 && c.Cache.Segments > 0 && c.Cache.MaxLen < c.Cache.Segments {
		errs = append(errs, "cache.max_len must be 0 or at least cache.segments")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not one of trace, debug, info, warn, error", c.Log.Level))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format must be console or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LoggingConfig converts the log section for logging.New. Call after Validate.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = lvl
	}
	lc.Format = c.Log.Format
	return lc
}
