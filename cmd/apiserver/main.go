// The apiserver binary serves the StratLens results HTTP API.  It
// accepts generation requests, hands them to the worker via the event
// bus, and serves persisted results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appresults "github.com/stratlens/stratlens/internal/application/results"
	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/infrastructure/database/postgres"
	"github.com/stratlens/stratlens/internal/infrastructure/database/postgres/repositories"
	redisdb "github.com/stratlens/stratlens/internal/infrastructure/database/redis"
	"github.com/stratlens/stratlens/internal/infrastructure/messaging/kafka"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/prometheus"
	httpiface "github.com/stratlens/stratlens/internal/interfaces/http"
	"github.com/stratlens/stratlens/internal/interfaces/http/handlers"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetDefault(log)
	log = log.Named("apiserver")

	conn, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()
	if cfg.Database.MigrationPath != "" {
		if err := conn.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := redisdb.NewClient(cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	cache := redisdb.NewBundleCache(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.DefaultTTL, log)

	producer, err := kafka.NewProducer(cfg.Kafka, "apiserver", log)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	defer producer.Close()

	repo := repositories.NewResultsRepo(conn.DB(), log)
	reader, err := appresults.NewReader(repo, cache, log)
	if err != nil {
		return err
	}

	metrics := prometheus.New()
	trigger := newEventTrigger(repo, producer)

	router := httpiface.NewRouter(httpiface.RouterConfig{
		ResultsHandler: handlers.NewResultsHandler(reader, trigger, log),
		HealthHandler: handlers.NewHealthHandler(version,
			handlers.HealthCheckFunc{ComponentName: "postgres", Fn: conn.HealthCheck},
			handlers.HealthCheckFunc{ComponentName: "redis", Fn: redisClient.Ping},
		),
		Logger:  log,
		Metrics: metrics,
	})
	server := httpiface.NewServer(cfg.Server, router, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(ctx)
}
