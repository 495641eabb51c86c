package channel

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

// TelegramConfig configures the Telegram Bot API webhook front-end.
type TelegramConfig struct {
	Path         string // default: /webhook/telegram
	SecretToken  string // compared to X-Telegram-Bot-Api-Secret-Token when set
	MaxBodyBytes int64
	Normalizer   domain.EventNormalizer
	Queue        Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Telegram serves update deliveries from the Bot API.
type Telegram struct {
	intake
	path        string
	secretToken string
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Path == "" {
		cfg.Path = "/webhook/telegram"
	}
	return &Telegram{
		intake:      newIntake("telegram", cfg.Normalizer, cfg.Queue, cfg.Metrics, cfg.MaxBodyBytes, cfg.Logger),
		path:        cfg.Path,
		secretToken: cfg.SecretToken,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Routes() []Route {
	return []Route{
		{Pattern: "POST " + t.path, Endpoint: t.path, Handler: http.HandlerFunc(t.handleIncoming)},
	}
}

func (t *Telegram) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	defer t.recoverWith(rw, writeTelegramAck)

	if t.secretToken != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(t.secretToken)) != 1 {
			t.logger.Warn("telegram invalid secret token")
			http.Error(rw, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := t.readBody(rw, r)
	if err != nil {
		t.bodyError(rw, err)
		return
	}

	t.dispatch(body)
	writeTelegramAck(rw)
}

func writeTelegramAck(rw http.ResponseWriter) {
	rw.WriteHeader(http.StatusOK)
}
