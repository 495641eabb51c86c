package webhook

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// Twilio normalizes Twilio's form-encoded messaging webhooks. One request
// carries exactly one message.
type Twilio struct {
	now func() time.Time
}

func NewTwilio() *Twilio {
	return &Twilio{now: time.Now}
}

// Normalize implements domain.EventNormalizer for an
// application/x-www-form-urlencoded body.
func (t *Twilio) Normalize(body []byte) ([]domain.InboundEvent, []error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, []error{&domain.MalformedEventError{Path: "form", Reason: err.Error()}}
	}
	ev, err := t.FromForm(form)
	if err != nil {
		return nil, []error{err}
	}
	return []domain.InboundEvent{ev}, nil
}

// FromForm classifies already-parsed webhook parameters.
func (t *Twilio) FromForm(form url.Values) (domain.InboundEvent, error) {
	from := strings.TrimSpace(form.Get("From"))
	if from == "" {
		return nil, &domain.MalformedEventError{Path: "form.From", Reason: "missing sender"}
	}
	meta := domain.EventMeta{
		Channel:    "twilio",
		Sender:     from,
		MessageID:  form.Get("MessageSid"),
		ReceivedAt: t.now(),
	}

	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))
	if numMedia > 0 {
		mime := form.Get("MediaContentType0")
		if strings.HasPrefix(mime, "audio/") {
			return domain.AudioEvent{EventMeta: meta, MediaRef: form.Get("MediaUrl0"), MimeType: mime}, nil
		}
		return domain.UnsupportedEvent{EventMeta: meta, Type: mime}, nil
	}

	if body := form.Get("Body"); isLanguageCommand(body) {
		return domain.TextEvent{EventMeta: meta, Body: body}, nil
	}
	return domain.UnsupportedEvent{EventMeta: meta, Type: "text"}, nil
}
