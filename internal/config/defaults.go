package config

import "time"

// Default values applied to unset configuration fields.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost       = "localhost"
	DefaultDBPort       = 5432
	DefaultDBName       = "stratlens"
	DefaultDBUser       = "stratlens"
	DefaultDBSSLMode    = "disable"
	DefaultDBMaxConns   = 25
	DefaultDBIdleConns  = 10
	DefaultMigrationDir = "migrations"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "stratlens"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "stratlens-workers"

	DefaultOpenSearchAddr        = "http://localhost:9200"
	DefaultOpenSearchIndexPrefix = "stratlens-content"
	DefaultOpenSearchMaxSnippets = 50

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "stratlens-results"

	DefaultLangGenModel      = "gpt-4o-mini"
	DefaultLangGenMaxRetries = 2

	DefaultMonteCarloIterations   = 1000
	DefaultNumPersonas            = 4
	DefaultContentSummaryMaxChars = 8000

	DefaultWorkerConcurrency = 4
	DefaultWorkerHealthPort  = 8081

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Duration defaults.
const (
	DefaultReadTimeout            = 15 * time.Second
	DefaultWriteTimeout           = 30 * time.Second
	DefaultShutdownTimeout        = 10 * time.Second
	DefaultRedisTTL               = 15 * time.Minute
	DefaultLangGenTimeout         = 60 * time.Second
	DefaultStaleProcessingTimeout = 30 * time.Minute
	DefaultReaperInterval         = 5 * time.Minute
	DefaultHandlerTimeout         = 10 * time.Minute
)

// ApplyDefaults fills every zero-value field in cfg with the platform
// default.  Fields already set by the caller are left unchanged so explicit
// configuration always wins.  Must run after unmarshalling and before
// Validate so optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBIdleConns
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultMigrationDir
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}

	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultOpenSearchIndexPrefix
	}
	if cfg.OpenSearch.MaxSnippets == 0 {
		cfg.OpenSearch.MaxSnippets = DefaultOpenSearchMaxSnippets
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	if cfg.LangGen.Model == "" {
		cfg.LangGen.Model = DefaultLangGenModel
	}
	if cfg.LangGen.Timeout == 0 {
		cfg.LangGen.Timeout = DefaultLangGenTimeout
	}
	if cfg.LangGen.MaxRetries == 0 {
		cfg.LangGen.MaxRetries = DefaultLangGenMaxRetries
	}

	if cfg.Pipeline.MonteCarloIterations == 0 {
		cfg.Pipeline.MonteCarloIterations = DefaultMonteCarloIterations
	}
	if cfg.Pipeline.NumPersonas == 0 {
		cfg.Pipeline.NumPersonas = DefaultNumPersonas
	}
	if cfg.Pipeline.ContentSummaryMaxChars == 0 {
		cfg.Pipeline.ContentSummaryMaxChars = DefaultContentSummaryMaxChars
	}
	if cfg.Pipeline.StaleProcessingTimeout == 0 {
		cfg.Pipeline.StaleProcessingTimeout = DefaultStaleProcessingTimeout
	}
	if cfg.Pipeline.ReaperInterval == 0 {
		cfg.Pipeline.ReaperInterval = DefaultReaperInterval
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = DefaultHandlerTimeout
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
