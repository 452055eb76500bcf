package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all platform
// settings, e.g. STRATLENS_DATABASE_HOST.
const envPrefix = "STRATLENS"

// newViper builds a pre-configured Viper instance: YAML file type,
// STRATLENS_ env prefix, automatic env binding, and a key replacer mapping
// "." to "_" so nested keys like "database.host" resolve from the
// environment.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Viper only consults the environment for keys it knows about, so every
	// supported key is bound explicitly.
	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// knownKeys lists every configuration key reachable via environment
// variables.  Keys set only in YAML do not need to appear here.
var knownKeys = []string{
	"server.port", "server.mode", "server.read_timeout", "server.write_timeout", "server.shutdown_timeout",
	"database.host", "database.port", "database.user", "database.password", "database.db_name",
	"database.ssl_mode", "database.max_open_conns", "database.max_idle_conns",
	"database.conn_max_lifetime", "database.conn_max_idle_time", "database.migration_path",
	"redis.addr", "redis.password", "redis.db", "redis.pool_size", "redis.default_ttl", "redis.key_prefix",
	"kafka.brokers", "kafka.group_id", "kafka.producer_retries",
	"opensearch.addresses", "opensearch.user", "opensearch.password",
	"opensearch.index_prefix", "opensearch.max_snippets",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.use_ssl", "minio.bucket",
	"langgen.base_url", "langgen.api_key", "langgen.model", "langgen.timeout",
	"langgen.max_retries", "langgen.temperature",
	"pipeline.monte_carlo_iterations", "pipeline.num_personas",
	"pipeline.content_summary_max_chars", "pipeline.stale_processing_timeout",
	"pipeline.reaper_interval", "pipeline.archive_enabled",
	"worker.concurrency", "worker.handler_timeout", "worker.health_port",
	"log.level", "log.format",
}

// Load reads the YAML file at configPath, merges STRATLENS_* environment
// overrides, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from STRATLENS_* environment
// variables with no config file.  This is the preferred loading strategy
// for containerised deployments.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	// Environment values arrive as strings; weak typing lets them decode
	// into int/bool/duration fields.
	weaklyTyped := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(cfg, weaklyTyped); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed
// Config whenever the file changes on disk.  Intended for hot-reloading
// non-critical settings such as log level; callers are responsible for
// applying only the safe subset of changes at runtime.
//
// Watch blocks until the watcher fails or stop is closed.  Changes that
// fail to parse or validate are skipped so the application never enters a
// broken state.
func Watch(configPath string, stop <-chan struct{}, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		return fmt.Errorf("config: failed to watch %q: %w", configPath, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(configPath)
			if err != nil {
				continue
			}
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config: watcher error: %w", err)
		}
	}
}
