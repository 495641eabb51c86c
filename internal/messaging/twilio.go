package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
)

// DefaultTwilioAPIBase is the Twilio REST API base URL.
const DefaultTwilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioConfig configures the Twilio Programmable Messaging client.
type TwilioConfig struct {
	APIBase       string
	AccountSID    string
	AuthToken     string
	From          string // e.g. "whatsapp:+14155238886"
	MaxMediaBytes int64
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Twilio implements domain.Messenger over Twilio's WhatsApp sandbox or sender.
type Twilio struct {
	apiBase    string
	accountSID string
	authToken  string
	from       string
	maxMedia   int64
	client     *http.Client
	logger     *slog.Logger
}

func NewTwilio(cfg TwilioConfig) *Twilio {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultTwilioAPIBase
	}
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Twilio{
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		maxMedia:   cfg.MaxMediaBytes,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) authorize(req *http.Request) {
	req.SetBasicAuth(t.accountSID, t.authToken)
}

// SendMessage creates a Message resource addressed to recipient.
func (t *Twilio) SendMessage(ctx context.Context, to, text string) (*domain.Receipt, error) {
	sid, err := t.createMessage(ctx, to, text)
	if err != nil {
		t.logger.Error("twilio send failed", "err", err, "to", to)
		return nil, &domain.SendError{Recipient: to, Err: err}
	}
	t.logger.Debug("twilio message sent", "to", to, "sid", sid)
	return &domain.Receipt{MessageID: sid, Recipient: to}, nil
}

func (t *Twilio) createMessage(ctx context.Context, to, text string) (string, error) {
	form := url.Values{}
	form.Set("From", t.from)
	form.Set("To", to)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.apiBase, url.PathEscape(t.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("twilio API: %w", statusError(resp))
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.SID, nil
}

// DownloadMedia fetches a MediaUrl from an inbound webhook. Twilio media URLs
// need no resolve step.
func (t *Twilio) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	if !isURL(mediaURL) {
		return nil, &domain.MediaFetchError{Ref: mediaURL, Stage: domain.StageResolve, Err: fmt.Errorf("not a media URL")}
	}
	data, err := fetch(ctx, t.client, mediaURL, t.authorize, t.maxMedia)
	if err != nil {
		return nil, &domain.MediaFetchError{Ref: mediaURL, Stage: domain.StageDownload, Err: err}
	}
	return data, nil
}
