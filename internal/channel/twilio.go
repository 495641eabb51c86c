package channel

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

// TwilioAck is the empty TwiML document returned for every accepted request.
const TwilioAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioConfig configures the Twilio WhatsApp webhook front-end.
type TwilioConfig struct {
	Path         string // default: /webhook/twilio
	AuthToken    string
	PublicURL    string // externally visible webhook URL; enables X-Twilio-Signature checks when set
	MaxBodyBytes int64
	Normalizer   domain.EventNormalizer
	Queue        Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Twilio serves the form-encoded Twilio Messaging webhook.
type Twilio struct {
	intake
	path      string
	authToken string
	publicURL string
}

func NewTwilio(cfg TwilioConfig) *Twilio {
	if cfg.Path == "" {
		cfg.Path = "/webhook/twilio"
	}
	return &Twilio{
		intake:    newIntake("twilio", cfg.Normalizer, cfg.Queue, cfg.Metrics, cfg.MaxBodyBytes, cfg.Logger),
		path:      cfg.Path,
		authToken: cfg.AuthToken,
		publicURL: cfg.PublicURL,
	}
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) Routes() []Route {
	return []Route{
		{Pattern: "POST " + t.path, Endpoint: t.path, Handler: http.HandlerFunc(t.handleIncoming)},
	}
}

func (t *Twilio) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	defer t.recoverWith(rw, writeTwilioAck)

	body, err := t.readBody(rw, r)
	if err != nil {
		t.bodyError(rw, err)
		return
	}

	if t.publicURL != "" && t.authToken != "" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			http.Error(rw, "Bad Request", http.StatusBadRequest)
			return
		}
		if !verifyTwilioSignature(t.authToken, t.publicURL, form, r.Header.Get("X-Twilio-Signature")) {
			t.logger.Warn("twilio invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	t.dispatch(body)
	writeTwilioAck(rw)
}

func writeTwilioAck(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, TwilioAck)
}

// twilioSignature computes base64(HMAC-SHA1(authToken, URL + sorted key/value pairs)).
func twilioSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			sb.WriteString(k)
			sb.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func verifyTwilioSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	expected := twilioSignature(authToken, fullURL, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}
