package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes pipeline events.  Messages are keyed by session ID
// so all events of one session land on one partition in order.
type Producer struct {
	writer WriterInterface
	source string
	logger logging.Logger
	closed atomic.Bool
}

// NewProducer builds a producer over the configured brokers.
func NewProducer(cfg config.KafkaConfig, source string, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.NewValidation("kafka: brokers must not be empty")
	}
	if log == nil {
		log = logging.Default()
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	maxAttempts := cfg.ProducerRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		BatchTimeout: batchTimeout,
		MaxAttempts:  maxAttempts,
		RequiredAcks: kafkago.RequireAll,
	}
	return &Producer{writer: writer, source: source, logger: log.Named("kafka_producer")}, nil
}

// NewProducerWithWriter wraps an existing writer (for testing).
func NewProducerWithWriter(writer WriterInterface, source string, log logging.Logger) *Producer {
	if log == nil {
		log = logging.Default()
	}
	return &Producer{writer: writer, source: source, logger: log.Named("kafka_producer")}
}

// PublishGenerationRequested enqueues a generation request.
func (p *Producer) PublishGenerationRequested(ctx context.Context, payload GenerationRequestedPayload) error {
	return p.publish(ctx, TopicGenerationRequested, payload.SessionID, payload)
}

// PublishGenerationCompleted announces a finished run.
func (p *Producer) PublishGenerationCompleted(ctx context.Context, payload GenerationCompletedPayload) error {
	return p.publish(ctx, TopicGenerationCompleted, payload.SessionID, payload)
}

func (p *Producer) publish(ctx context.Context, topic string, sessionID common.SessionID, payload interface{}) error {
	if p.closed.Load() {
		return errors.New(errors.ErrCodeInternal, "kafka producer is closed")
	}
	envelope, err := NewEventEnvelope(topic, p.source, payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(sessionID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to publish "+topic)
	}
	p.logger.Debug("published event",
		logging.String("topic", topic),
		logging.String("event_id", envelope.EventID),
		logging.String("session_id", string(sessionID)),
	)
	return nil
}

// Close flushes and shuts the writer down.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to close kafka producer")
	}
	return nil
}
