// Package webhook turns raw platform webhook bodies into domain.InboundEvent
// values. Each front-end tolerates partial garbage: a bad entry is reported
// and skipped while its siblings are still delivered.
package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// DefaultWhatsAppObject is the top-level discriminator of Cloud API payloads.
const DefaultWhatsAppObject = "whatsapp_business_account"

// WhatsApp normalizes WhatsApp Business Cloud API webhook payloads.
type WhatsApp struct {
	object string
	logger *slog.Logger
	now    func() time.Time
}

// NewWhatsApp creates a normalizer accepting payloads whose object equals
// expectedObject (DefaultWhatsAppObject when empty).
func NewWhatsApp(expectedObject string, logger *slog.Logger) *WhatsApp {
	if expectedObject == "" {
		expectedObject = DefaultWhatsAppObject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{object: expectedObject, logger: logger, now: time.Now}
}

// --- WhatsApp webhook payload types ---
//
// Nested arrays stay raw so that one element of the wrong shape fails alone.

type waPayload struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

type waEntry struct {
	ID      string            `json:"id"`
	Changes []json.RawMessage `json:"changes"`
}

type waChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type waValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         waMetadata        `json:"metadata"`
	Contacts         []waContact       `json:"contacts"`
	Messages         []json.RawMessage `json:"messages"`
}

type waMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Text      *waText  `json:"text,omitempty"`
	Audio     *waAudio `json:"audio,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waAudio struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Voice    bool   `json:"voice"`
}

// Normalize implements domain.EventNormalizer.
func (w *WhatsApp) Normalize(body []byte) ([]domain.InboundEvent, []error) {
	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, []error{&domain.MalformedEventError{Path: "$", Reason: err.Error()}}
	}
	if payload.Object != w.object {
		w.logger.Debug("whatsapp payload ignored", "object", payload.Object)
		return nil, nil
	}

	var (
		events []domain.InboundEvent
		errs   []error
	)
	for i, rawEntry := range payload.Entry {
		entryPath := fmt.Sprintf("entry[%d]", i)
		var entry waEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			errs = append(errs, &domain.MalformedEventError{Path: entryPath, Reason: err.Error()})
			continue
		}
		for j, rawChange := range entry.Changes {
			changePath := fmt.Sprintf("%s.changes[%d]", entryPath, j)
			var change waChange
			if err := json.Unmarshal(rawChange, &change); err != nil {
				errs = append(errs, &domain.MalformedEventError{Path: changePath, Reason: err.Error()})
				continue
			}
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			if len(change.Value) == 0 {
				continue
			}
			var value waValue
			if err := json.Unmarshal(change.Value, &value); err != nil {
				errs = append(errs, &domain.MalformedEventError{Path: changePath + ".value", Reason: err.Error()})
				continue
			}
			w.logger.Debug("whatsapp change",
				"phone_number_id", value.Metadata.PhoneNumberID,
				"contacts", contactNames(value.Contacts),
				"messages", len(value.Messages),
			)
			for k, rawMsg := range value.Messages {
				msgPath := fmt.Sprintf("%s.messages[%d]", changePath, k)
				ev, err := w.message(rawMsg, msgPath)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				events = append(events, ev)
			}
		}
	}
	return events, errs
}

func (w *WhatsApp) message(raw json.RawMessage, path string) (domain.InboundEvent, error) {
	var msg waMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &domain.MalformedEventError{Path: path, Reason: err.Error()}
	}
	if msg.From == "" {
		return nil, &domain.MalformedEventError{Path: path, Reason: "missing sender"}
	}

	meta := domain.EventMeta{
		Channel:    "whatsapp",
		Sender:     msg.From,
		MessageID:  msg.ID,
		ReceivedAt: w.timestamp(msg.Timestamp),
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil && isLanguageCommand(msg.Text.Body) {
			return domain.TextEvent{EventMeta: meta, Body: msg.Text.Body}, nil
		}
	case "audio":
		// An audio message without a media id still gets the ack and apology;
		// the pipeline fails it at the resolve stage.
		ev := domain.AudioEvent{EventMeta: meta}
		if msg.Audio != nil {
			ev.MediaRef, ev.MimeType = msg.Audio.ID, msg.Audio.MimeType
		}
		return ev, nil
	}
	return domain.UnsupportedEvent{EventMeta: meta, Type: msg.Type}, nil
}

// timestamp parses the Unix-seconds string WhatsApp sends, falling back to now.
func (w *WhatsApp) timestamp(s string) time.Time {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0)
	}
	return w.now()
}

func isLanguageCommand(body string) bool {
	_, ok := domain.ParseLanguageCommand(body)
	return ok
}

func contactNames(contacts []waContact) string {
	names := make([]string, 0, len(contacts))
	for _, c := range contacts {
		names = append(names, c.Profile.Name)
	}
	return strings.Join(names, ",")
}
