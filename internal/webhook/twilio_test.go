package webhook

import (
	"net/url"
	"testing"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

func TestTwilio_Normalize(t *testing.T) {
	tests := []struct {
		name  string
		form  url.Values
		check func(t *testing.T, ev domain.InboundEvent)
	}{
		{
			name: "audio",
			form: url.Values{
				"From": {"whatsapp:+15550001"}, "MessageSid": {"SM1"}, "NumMedia": {"1"},
				"MediaUrl0": {"https://api.twilio.com/media/ME1"}, "MediaContentType0": {"audio/ogg"},
			},
			check: func(t *testing.T, ev domain.InboundEvent) {
				a, ok := ev.(domain.AudioEvent)
				if !ok || a.MediaRef != "https://api.twilio.com/media/ME1" || a.Sender != "whatsapp:+15550001" || a.MessageID != "SM1" {
					t.Errorf("unexpected %#v", ev)
				}
			},
		},
		{
			name: "language command",
			form: url.Values{"From": {"whatsapp:+1"}, "Body": {"language: english"}, "NumMedia": {"0"}},
			check: func(t *testing.T, ev domain.InboundEvent) {
				if e, ok := ev.(domain.TextEvent); !ok || e.Body != "language: english" {
					t.Errorf("unexpected %#v", ev)
				}
			},
		},
		{
			name: "image",
			form: url.Values{"From": {"whatsapp:+1"}, "NumMedia": {"1"}, "MediaContentType0": {"image/jpeg"}, "MediaUrl0": {"https://x"}},
			check: func(t *testing.T, ev domain.InboundEvent) {
				if u, ok := ev.(domain.UnsupportedEvent); !ok || u.Type != "image/jpeg" {
					t.Errorf("unexpected %#v", ev)
				}
			},
		},
		{
			name: "plain text",
			form: url.Values{"From": {"whatsapp:+1"}, "Body": {"hello"}},
			check: func(t *testing.T, ev domain.InboundEvent) {
				if _, ok := ev.(domain.UnsupportedEvent); !ok {
					t.Errorf("unexpected %#v", ev)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, errs := NewTwilio().Normalize([]byte(tt.form.Encode()))
			if len(errs) != 0 || len(events) != 1 {
				t.Fatalf("expected one event, got %v / %v", events, errs)
			}
			tt.check(t, events[0])
		})
	}
}

func TestTwilio_Normalize_MissingSender(t *testing.T) {
	events, errs := NewTwilio().Normalize([]byte("Body=language%3A+english"))
	if len(events) != 0 || len(errs) != 1 {
		t.Fatalf("expected one diagnostic, got %v / %v", events, errs)
	}
}

func TestTwilio_Normalize_AudioWithoutURL(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+1"}, "NumMedia": {"1"}, "MediaContentType0": {"audio/mpeg"}}
	events, errs := NewTwilio().Normalize([]byte(form.Encode()))
	if len(errs) != 0 || len(events) != 1 {
		t.Fatalf("expected one event, got %v / %v", events, errs)
	}
	a, ok := events[0].(domain.AudioEvent)
	if !ok || a.MediaRef != "" || a.Sender != "whatsapp:+1" {
		t.Errorf("expected audio event without media ref, got %#v", events[0])
	}
}
