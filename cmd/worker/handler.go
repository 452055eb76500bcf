package main

import (
	"context"
	"time"

	appresults "github.com/stratlens/stratlens/internal/application/results"
	"github.com/stratlens/stratlens/internal/config"
	domain "github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/messaging/kafka"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/prometheus"
	"github.com/stratlens/stratlens/pkg/errors"
)

// generationHandler turns consumed generation.requested events into
// pipeline runs.  A concurrent claim by another worker is not an error
// for the event bus, so GEN_002 acks the message instead of retrying it.
func generationHandler(orch *appresults.Orchestrator, timeout time.Duration, metrics *prometheus.Metrics, log logging.Logger) kafka.Handler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return func(ctx context.Context, envelope *kafka.EventEnvelope) error {
		var payload kafka.GenerationRequestedPayload
		if err := envelope.DecodePayload(&payload); err != nil {
			metrics.EventsConsumedTotal.WithLabelValues(kafka.TopicGenerationRequested, "decode_error").Inc()
			log.Error("dropping undecodable generation request",
				logging.String("event_id", envelope.EventID),
				logging.Err(err))
			return nil
		}

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := orch.Generate(runCtx, payload.SessionID, payload.Topic, payload.Force)
		switch {
		case err == nil:
			metrics.EventsConsumedTotal.WithLabelValues(kafka.TopicGenerationRequested, "ok").Inc()
			return nil
		case errors.IsCode(err, errors.ErrCodeGenerationInProgress):
			metrics.EventsConsumedTotal.WithLabelValues(kafka.TopicGenerationRequested, "duplicate").Inc()
			log.Info("another worker holds the run, acking duplicate request",
				logging.String("session_id", string(payload.SessionID)))
			return nil
		default:
			metrics.EventsConsumedTotal.WithLabelValues(kafka.TopicGenerationRequested, "error").Inc()
			return err
		}
	}
}

// runReaper periodically force-fails runs that have sat in processing
// longer than the stale timeout, freeing their sessions for reruns.
func runReaper(ctx context.Context, repo domain.Repository, cfg config.PipelineConfig, log logging.Logger) {
	interval := cfg.ReaperInterval
	if interval <= 0 {
		interval = time.Minute
	}
	staleAfter := cfg.StaleProcessingTimeout
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}

	log = log.Named("reaper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-staleAfter)
			reaped, err := repo.ResetStaleProcessing(ctx, cutoff)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("stale run sweep failed", logging.Err(err))
				}
				continue
			}
			if reaped > 0 {
				log.Warn("force-failed stale generation runs",
					logging.Int64("count", reaped),
					logging.Duration("older_than", staleAfter))
			}
		}
	}
}
