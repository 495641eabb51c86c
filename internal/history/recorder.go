package history

import (
	"context"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
)

const writeTimeout = 5 * time.Second

// Attach subscribes the store to transcription outcomes on eb. The returned
// function removes the subscriptions.
func (s *Store) Attach(eb *bus.EventBus) (detach func()) {
	completedID := eb.On(bus.EventTranscriptionCompleted, s.onCompleted)
	failedID := eb.On(bus.EventTranscriptionFailed, s.onFailed)
	return func() {
		eb.Off(bus.EventTranscriptionCompleted, completedID)
		eb.Off(bus.EventTranscriptionFailed, failedID)
	}
}

func (s *Store) onCompleted(e bus.Event) {
	rec := Record{
		Channel:              e.Source,
		Sender:               payloadString(e.Payload, bus.KeySender),
		MessageID:            payloadString(e.Payload, bus.KeyMessageID),
		Language:             payloadString(e.Payload, bus.KeyLanguage),
		Text:                 payloadString(e.Payload, bus.KeyText),
		Confidence:           payloadFloat(e.Payload, bus.KeyConfidence),
		Quality:              payloadString(e.Payload, bus.KeyQuality),
		AudioDurationSeconds: payloadFloat(e.Payload, bus.KeyDuration),
		ProcessingTimeMs:     payloadInt(e.Payload, bus.KeyProcessingMs),
		CreatedAt:            e.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.SaveTranscript(ctx, rec); err != nil {
		s.logger.Error("history write failed", "err", err, "sender", rec.Sender)
	}
}

func (s *Store) onFailed(e bus.Event) {
	f := Failure{
		Channel:   e.Source,
		Sender:    payloadString(e.Payload, bus.KeySender),
		MessageID: payloadString(e.Payload, bus.KeyMessageID),
		Language:  payloadString(e.Payload, bus.KeyLanguage),
		Stage:     payloadString(e.Payload, bus.KeyStage),
		Error:     payloadString(e.Payload, bus.KeyError),
		CreatedAt: e.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.SaveFailure(ctx, f); err != nil {
		s.logger.Error("history write failed", "err", err, "sender", f.Sender)
	}
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func payloadInt(p map[string]any, key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
