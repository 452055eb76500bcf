// Package config defines all configuration structures for the StratLens
// platform.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	MinBytes        int           `mapstructure:"min_bytes"`
	MaxBytes        int           `mapstructure:"max_bytes"`
}

// OpenSearchConfig holds the content-source cluster parameters.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
	MaxSnippets        int      `mapstructure:"max_snippets"`
}

// MinIOConfig holds the object-storage parameters used for result-bundle
// archival.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// LangGenConfig holds the language-generation collaborator parameters.
// The endpoint speaks the OpenAI chat-completions protocol.
type LangGenConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Temperature float64       `mapstructure:"temperature"`
}

// PipelineConfig holds the tunables of the results generation pipeline.
type PipelineConfig struct {
	// MonteCarloIterations is the draw count per pattern simulation.
	MonteCarloIterations int `mapstructure:"monte_carlo_iterations"`

	// NumPersonas is the target persona count for the consumer segment.
	NumPersonas int `mapstructure:"num_personas"`

	// ContentSummaryMaxChars caps the content summary fed to the
	// language-generation collaborator.
	ContentSummaryMaxChars int `mapstructure:"content_summary_max_chars"`

	// StaleProcessingTimeout is how long a run may sit in "processing"
	// before the reaper force-resets it to failed.
	StaleProcessingTimeout time.Duration `mapstructure:"stale_processing_timeout"`

	// ReaperInterval is how often the worker scans for stale runs.
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`

	// ArchiveEnabled toggles best-effort bundle archival to object storage.
	ArchiveEnabled bool `mapstructure:"archive_enabled"`
}

// WorkerConfig holds background-worker parameters.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	HealthPort     int           `mapstructure:"health_port"`
}

// Config is the root configuration for all StratLens binaries.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	LangGen    LangGenConfig     `mapstructure:"langgen"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline"`
	Worker     WorkerConfig      `mapstructure:"worker"`
	Log        logging.LogConfig `mapstructure:"log"`
}

// Validate checks cross-field consistency after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host must not be empty")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port out of range: %d", c.Database.Port)
	}
	if c.Pipeline.MonteCarloIterations < 1 {
		return fmt.Errorf("pipeline.monte_carlo_iterations must be >= 1, got %d", c.Pipeline.MonteCarloIterations)
	}
	if c.Pipeline.NumPersonas < 3 || c.Pipeline.NumPersonas > 5 {
		return fmt.Errorf("pipeline.num_personas must be in [3,5], got %d", c.Pipeline.NumPersonas)
	}
	if c.Pipeline.StaleProcessingTimeout <= 0 {
		return fmt.Errorf("pipeline.stale_processing_timeout must be positive")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	return nil
}
