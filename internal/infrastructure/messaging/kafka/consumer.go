package kafka

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
)

// Handler processes one decoded envelope.  A returned error is logged;
// the message is committed either way because generation is idempotent
// and a poison message must not wedge the partition.
type Handler func(ctx context.Context, envelope *EventEnvelope) error

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads generation requests for the worker.
type Consumer struct {
	reader  ReaderInterface
	handler Handler
	logger  logging.Logger
}

// NewConsumer builds a group consumer on the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, handler Handler, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.NewValidation("kafka: brokers must not be empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.NewValidation("kafka: group_id must not be empty")
	}
	if handler == nil {
		return nil, errors.NewValidation("kafka: handler must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    minBytes,
		MaxBytes:    maxBytes,
		StartOffset: kafkago.FirstOffset,
	})
	return &Consumer{reader: reader, handler: handler, logger: log.Named("kafka_consumer")}, nil
}

// NewConsumerWithReader wraps an existing reader (for testing).
func NewConsumerWithReader(reader ReaderInterface, handler Handler, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.Default()
	}
	return &Consumer{reader: reader, handler: handler, logger: log.Named("kafka_consumer")}
}

// Run consumes until the context is cancelled.  It returns nil on
// cancellation and the fetch error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "kafka fetch failed")
		}

		var envelope EventEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			c.logger.Error("dropping undecodable message",
				logging.String("topic", msg.Topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
		} else if err := c.handler(ctx, &envelope); err != nil {
			c.logger.Error("handler failed",
				logging.String("topic", msg.Topic),
				logging.String("event_id", envelope.EventID),
				logging.Err(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("commit failed",
				logging.String("topic", msg.Topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
		}
	}
}

// Close shuts the reader down.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to close kafka consumer")
	}
	return nil
}
