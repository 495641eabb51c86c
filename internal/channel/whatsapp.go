package channel

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

// WhatsAppAck is the body returned for every accepted notification.
const WhatsAppAck = "EVENT_RECEIVED"

// WhatsAppConfig configures the WhatsApp Cloud webhook front-end.
type WhatsAppConfig struct {
	Path         string // webhook path (default: /webhook)
	VerifyToken  string // hub.verify_token expected during subscription
	AppSecret    string // enables X-Hub-Signature-256 checks when set
	MaxBodyBytes int64
	Normalizer   domain.EventNormalizer
	Queue        Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// WhatsApp serves the Meta webhook: the subscription handshake and message
// notifications.
type WhatsApp struct {
	intake
	path        string
	verifyToken string
	appSecret   string
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	return &WhatsApp{
		intake:      newIntake("whatsapp", cfg.Normalizer, cfg.Queue, cfg.Metrics, cfg.MaxBodyBytes, cfg.Logger),
		path:        cfg.Path,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Routes returns the handshake on the webhook path and on "/", plus the
// notification endpoint.
func (w *WhatsApp) Routes() []Route {
	routes := []Route{
		{Pattern: "GET " + w.path, Endpoint: w.path, Handler: http.HandlerFunc(w.handleVerification)},
		{Pattern: "POST " + w.path, Endpoint: w.path, Handler: http.HandlerFunc(w.handleIncoming)},
	}
	if w.path != "/" {
		routes = append(routes, Route{Pattern: "GET /{$}", Endpoint: "/", Handler: http.HandlerFunc(w.handleVerification)})
	}
	return routes
}

// handleVerification answers the subscription challenge.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && w.verifyToken != "" && token == w.verifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming enqueues the notification's events and always answers 200
// once the body is authentic, even when it cannot be parsed.
func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	defer w.recoverWith(rw, writeWhatsAppAck)

	body, err := w.readBody(rw, r)
	if err != nil {
		w.bodyError(rw, err)
		return
	}

	if w.appSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" || !verifyHMAC(body, w.appSecret, sig) {
			w.logger.Warn("whatsapp invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	w.dispatch(body)
	writeWhatsAppAck(rw)
}

func writeWhatsAppAck(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, WhatsAppAck)
}
