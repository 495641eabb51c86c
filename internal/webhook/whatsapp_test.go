package webhook

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWhatsApp_Normalize_MixedMessages(t *testing.T) {
	body := []byte(`{
	  "object": "whatsapp_business_account",
	  "entry": [{
	    "id": "WABA",
	    "changes": [{
	      "field": "messages",
	      "value": {
	        "messaging_product": "whatsapp",
	        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "PHONE"},
	        "contacts": [{"wa_id": "15550001", "profile": {"name": "Dana"}}],
	        "messages": [
	          {"from": "15550001", "id": "m1", "timestamp": "1700000000", "type": "text", "text": {"body": "Language: Hebrew"}},
	          {"from": "15550001", "id": "m2", "type": "audio", "audio": {"id": "MEDIA", "mime_type": "audio/ogg; codecs=opus", "voice": true}},
	          {"from": "15550002", "id": "m3", "type": "text", "text": {"body": "hi there"}},
	          {"from": "15550003", "id": "m4", "type": "image", "image": {"id": "IMG"}}
	        ]
	      }
	    }]
	  }]
	}`)

	events, errs := NewWhatsApp("", testLogger()).Normalize(body)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	text, ok := events[0].(domain.TextEvent)
	if !ok || text.Body != "Language: Hebrew" || text.Sender != "15550001" {
		t.Errorf("event 0: unexpected %#v", events[0])
	}
	if !text.ReceivedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("event 0: timestamp not parsed, got %v", text.ReceivedAt)
	}

	audio, ok := events[1].(domain.AudioEvent)
	if !ok || audio.MediaRef != "MEDIA" || audio.MessageID != "m2" || audio.Channel != "whatsapp" {
		t.Errorf("event 1: unexpected %#v", events[1])
	}

	if u, ok := events[2].(domain.UnsupportedEvent); !ok || u.Type != "text" {
		t.Errorf("event 2: plain text should be unsupported, got %#v", events[2])
	}
	if u, ok := events[3].(domain.UnsupportedEvent); !ok || u.Type != "image" || u.Sender != "15550003" {
		t.Errorf("event 3: unexpected %#v", events[3])
	}
}

func TestWhatsApp_Normalize_WrongObject(t *testing.T) {
	body := []byte(`{"object": "page", "entry": [{"changes": [{"value": {"messages": [{"from": "1", "type": "text", "text": {"body": "language: english"}}]}}]}]}`)
	events, errs := NewWhatsApp("", testLogger()).Normalize(body)
	if len(events) != 0 || len(errs) != 0 {
		t.Fatalf("expected nothing, got %v / %v", events, errs)
	}
}

func TestWhatsApp_Normalize_MissingArrays(t *testing.T) {
	for _, body := range []string{
		`{"object": "whatsapp_business_account"}`,
		`{"object": "whatsapp_business_account", "entry": [{}]}`,
		`{"object": "whatsapp_business_account", "entry": [{"changes": [{}]}]}`,
		`{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {}}]}]}`,
	} {
		events, errs := NewWhatsApp("", testLogger()).Normalize([]byte(body))
		if len(events) != 0 || len(errs) != 0 {
			t.Errorf("%s: expected nothing, got %v / %v", body, events, errs)
		}
	}
}

func TestWhatsApp_Normalize_SkipsMalformedSiblings(t *testing.T) {
	body := []byte(`{
	  "object": "whatsapp_business_account",
	  "entry": [
	    "not an object",
	    {"changes": [
	      {"value": {"messages": [
	        {"type": "audio", "audio": {"id": "NOSENDER"}},
	        {"from": "1", "type": "audio", "audio": {}},
	        42,
	        {"from": "2", "type": "audio", "audio": {"id": "GOOD"}}
	      ]}},
	      {"field": "statuses", "value": {"statuses": [{"id": "x"}]}}
	    ]}
	  ]
	}`)

	events, errs := NewWhatsApp("", testLogger()).Normalize(body)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if a, ok := events[0].(domain.AudioEvent); !ok || a.Sender != "1" || a.MediaRef != "" {
		t.Errorf("unexpected event %#v", events[0])
	}
	if a, ok := events[1].(domain.AudioEvent); !ok || a.MediaRef != "GOOD" {
		t.Errorf("unexpected event %#v", events[1])
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d: %v", len(errs), errs)
	}
	var malformed *domain.MalformedEventError
	if !errors.As(errs[0], &malformed) || malformed.Path != "entry[0]" {
		t.Errorf("unexpected first diagnostic %v", errs[0])
	}
	if !errors.As(errs[1], &malformed) || malformed.Reason != "missing sender" {
		t.Errorf("unexpected second diagnostic %v", errs[1])
	}
}

func TestWhatsApp_Normalize_AudioWithoutMediaID(t *testing.T) {
	body := []byte(`{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {"messages": [
	  {"from": "15550001", "id": "wamid.9", "type": "audio", "audio": {}},
	  {"from": "15550002", "id": "wamid.10", "type": "audio"}
	]}}]}]}`)

	events, errs := NewWhatsApp("", testLogger()).Normalize(body)
	if len(errs) != 0 {
		t.Fatalf("unexpected diagnostics %v", errs)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, ev := range events {
		a, ok := ev.(domain.AudioEvent)
		if !ok || a.MediaRef != "" {
			t.Errorf("event %d: expected audio without media ref, got %#v", i, ev)
		}
	}
}

func TestWhatsApp_Normalize_InvalidJSON(t *testing.T) {
	events, errs := NewWhatsApp("", testLogger()).Normalize([]byte(`{"object":`))
	if len(events) != 0 || len(errs) != 1 {
		t.Fatalf("expected one diagnostic, got %v / %v", events, errs)
	}
}

func TestWhatsApp_Normalize_CustomObject(t *testing.T) {
	body := []byte(`{"object": "test_account", "entry": [{"changes": [{"value": {"messages": [{"from": "1", "type": "sticker"}]}}]}]}`)
	events, _ := NewWhatsApp("test_account", testLogger()).Normalize(body)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}
