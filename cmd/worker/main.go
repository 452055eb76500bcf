// The worker binary consumes generation requests from the event bus
// and runs the results pipeline.  It also reaps runs that died while
// processing.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stratlens/stratlens/internal/analysis/montecarlo"
	"github.com/stratlens/stratlens/internal/analysis/personas"
	appresults "github.com/stratlens/stratlens/internal/application/results"
	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/infrastructure/content/opensearch"
	"github.com/stratlens/stratlens/internal/infrastructure/database/postgres"
	"github.com/stratlens/stratlens/internal/infrastructure/database/postgres/repositories"
	redisdb "github.com/stratlens/stratlens/internal/infrastructure/database/redis"
	"github.com/stratlens/stratlens/internal/infrastructure/messaging/kafka"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/prometheus"
	miniostore "github.com/stratlens/stratlens/internal/infrastructure/storage/minio"
	"github.com/stratlens/stratlens/internal/intelligence/langgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
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
	log = log.Named("worker")

	conn, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	redisClient, err := redisdb.NewClient(cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	cache := redisdb.NewBundleCache(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.DefaultTTL, log)

	source, err := opensearch.NewSource(cfg.OpenSearch, log)
	if err != nil {
		return fmt.Errorf("create content source: %w", err)
	}

	var archiver appresults.Archiver
	if cfg.Pipeline.ArchiveEnabled {
		a, err := miniostore.NewArchiver(cfg.MinIO, log)
		if err != nil {
			return fmt.Errorf("create archiver: %w", err)
		}
		archiver = a
	}

	producer, err := kafka.NewProducer(cfg.Kafka, "worker", log)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	defer producer.Close()

	var generator langgen.Generator
	if cfg.LangGen.APIKey != "" {
		generator, err = langgen.NewOpenAIGenerator(cfg.LangGen, log)
		if err != nil {
			return fmt.Errorf("create language generator: %w", err)
		}
	}

	repo := repositories.NewResultsRepo(conn.DB(), log)
	metrics := prometheus.New()

	orch, err := appresults.NewOrchestrator(appresults.OrchestratorDeps{
		Repo:      repo,
		Source:    source,
		Simulator: montecarlo.NewSimulator(log, cfg.Pipeline.MonteCarloIterations),
		Personas:  personas.NewSynthesizer(generator, log, cfg.Pipeline.NumPersonas, cfg.Pipeline.ContentSummaryMaxChars),
		Cache:     cache,
		Archiver:  archiver,
		Publisher: producer,
		Metrics:   metrics,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	handler := generationHandler(orch, cfg.Worker.HandlerTimeout, metrics, log)

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	consumers := make([]*kafka.Consumer, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		consumer, err := kafka.NewConsumer(cfg.Kafka, []string{kafka.TopicGenerationRequested}, handler, log)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		consumers = append(consumers, consumer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, consumer := range consumers {
		wg.Add(1)
		go func(c *kafka.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("consumer stopped", logging.Err(err))
			}
		}(consumer)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReaper(ctx, repo, cfg.Pipeline, log)
	}()

	healthSrv := startHealthServer(cfg.Worker.HealthPort, metrics, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("shutdown signal received", logging.String("signal", sig.String()))

	cancel()
	for _, consumer := range consumers {
		_ = consumer.Close()
	}
	wg.Wait()

	if healthSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// startHealthServer exposes the probe and metrics endpoints.  A zero
// port disables it.
func startHealthServer(port int, metrics *prometheus.Metrics, log logging.Logger) *http.Server {
	if port <= 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server failed", logging.Err(err))
		}
	}()
	return srv
}
