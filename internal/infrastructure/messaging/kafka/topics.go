// Package kafka carries the asynchronous generation requests and
// completion notifications between the API server and the worker.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// Topic constants.
const (
	TopicGenerationRequested = "results.generation.requested"
	TopicGenerationCompleted = "results.generation.completed"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// GenerationRequestedPayload asks the worker to run the pipeline for a
// session.  Force regenerates even when completed results exist.
type GenerationRequestedPayload struct {
	SessionID   common.SessionID `json:"session_id"`
	Topic       string           `json:"topic"`
	Force       bool             `json:"force"`
	RequestedAt time.Time        `json:"requested_at"`
}

// GenerationCompletedPayload announces a finished run, successful or not.
type GenerationCompletedPayload struct {
	SessionID         common.SessionID `json:"session_id"`
	Topic             string           `json:"topic"`
	Status            string           `json:"status"`
	CompletedSegments int              `json:"completed_segments"`
	FailedSegments    []string         `json:"failed_segments,omitempty"`
	CompletedAt       time.Time        `json:"completed_at"`
}

// NewEventEnvelope wraps a payload in a fresh envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}
