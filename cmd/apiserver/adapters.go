package main

import (
	"context"
	"time"

	domain "github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/messaging/kafka"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// requestPublisher is the producer surface the trigger needs.
type requestPublisher interface {
	PublishGenerationRequested(ctx context.Context, payload kafka.GenerationRequestedPayload) error
}

// eventTrigger queues generation runs on the event bus.  It rejects a
// session already in processing up front so the API can answer 409
// instead of silently dropping the request in the worker.
type eventTrigger struct {
	repo      domain.Repository
	publisher requestPublisher
}

func newEventTrigger(repo domain.Repository, publisher requestPublisher) *eventTrigger {
	return &eventTrigger{repo: repo, publisher: publisher}
}

func (t *eventTrigger) RequestGeneration(ctx context.Context, sessionID common.SessionID, topic string, force bool) error {
	status, err := t.repo.GetGenerationStatus(ctx, sessionID)
	if err != nil {
		return err
	}
	if status != nil && status.Status == domain.StateProcessing {
		return errors.Newf(errors.ErrCodeGenerationInProgress,
			"generation already in progress for session %s", sessionID)
	}

	return t.publisher.PublishGenerationRequested(ctx, kafka.GenerationRequestedPayload{
		SessionID:   sessionID,
		Topic:       topic,
		Force:       force,
		RequestedAt: time.Now().UTC(),
	})
}
