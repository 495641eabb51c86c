// Package events forwards internal pipeline events to a RabbitMQ topic
// exchange so downstream consumers can follow transcriptions without polling.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
)

// Producer identifies this service in envelope metadata.
const Producer = "transcripts"

// Meta describes an envelope.
type Meta struct {
	// Inbound platform message id, when the event belongs to one
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
	// Event name and version, e.g. transcription.completed.v1
	Type string `json:"type"`
}

// Envelope is the JSON body published for every event.
type Envelope struct {
	Meta    Meta           `json:"meta"`
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data"`
}

// NewEnvelope wraps a bus event.
func NewEnvelope(e bus.Event) Envelope {
	producer := Producer
	env := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: &producer,
			Time:     e.Timestamp.UTC(),
			Type:     e.Type + ".v1",
		},
		Channel: e.Source,
		Data:    e.Payload,
	}
	if id, ok := e.Payload[bus.KeyMessageID].(string); ok && id != "" {
		env.Meta.CorrelationID = &id
	}
	return env
}

// RoutingKey returns the topic key for an event type, e.g.
// "transcripts.transcription.completed".
func RoutingKey(eventType string) string {
	return Producer + "." + eventType
}
