package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override,
// e.g. SHARDCACHED_CACHE_MAX_BYTES for cache.max_bytes.
const EnvPrefix = "SHARDCACHED"

// Loader resolves a Config and optionally keeps it current.
type Loader struct {
	viper *viper.Viper
	log   zerolog.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	watching  bool
}

// NewLoader returns a Loader with defaults and environment bindings set.
func NewLoader(log zerolog.Logger) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l := &Loader{viper: v, log: log}
	l.setDefaults()
	return l
}

func (l *Loader) setDefaults() {
	d := Default()
	l.viper.SetDefault("server.network", d.Server.Network)
	l.viper.SetDefault("server.address", d.Server.Address)
	l.viper.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	l.viper.SetDefault("server.max_frame_bytes", d.Server.MaxFrameBytes)
	l.viper.SetDefault("cache.max_bytes", d.Cache.MaxBytes)
	l.viper.SetDefault("cache.max_len", d.Cache.MaxLen)
	l.viper.SetDefault("cache.segments", d.Cache.Segments)
	l.viper.SetDefault("metrics.address", d.Metrics.Address)
	l.viper.SetDefault("metrics.namespace", d.Metrics.Namespace)
	l.viper.SetDefault("log.level", d.Log.Level)
	l.viper.SetDefault("log.format", d.Log.Format)
}

// BindFlags binds flags to config keys; keys maps flag name to key.
// A flag only overrides the key when it was set on the command line.
func (l *Loader) BindFlags(fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("config: no flag %q to bind to %s", name, key)
		}
		if err := l.viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Load reads file (if not empty), applies environment and flag overrides,
// and validates the result.
func (l *Loader) Load(file string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if file != "" {
		l.viper.SetConfigFile(file)
		if err := l.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.config = cfg
	return cfg, nil
}

// Config returns the last loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers fn to run after each successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Watch reloads the config file whenever it changes on disk. It is a
// no-op when no file was loaded. A reload that fails validation is
// logged and the previous config is kept.
func (l *Loader) Watch() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watching || l.viper.ConfigFileUsed() == "" {
		return
	}
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		l.log.Debug().Str("op", e.Op.String()).Str("file", e.Name).Msg("config file changed")

		l.mu.Lock()
		cfg, err := l.decode()
		if err != nil {
			l.mu.Unlock()
			l.log.Warn().Err(err).Msg("config reload rejected, keeping previous")
			return
		}
		l.config = cfg
		callbacks := append([](func(*Config))(nil), l.callbacks...)
		l.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	l.viper.WatchConfig()
	l.watching = true
}

// decode must be called with mu held.
func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
