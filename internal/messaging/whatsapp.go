package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
)

const whatsappAPIBase = "https://graph.facebook.com/v18.0"

// WhatsAppConfig configures the WhatsApp Business Cloud API client.
type WhatsAppConfig struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	MaxMediaBytes int64
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// WhatsApp implements domain.Messenger, domain.MediaUploader and
// domain.ReadMarker for the WhatsApp Business Cloud API.
type WhatsApp struct {
	apiURL        string
	phoneNumberID string
	accessToken   string
	maxMedia      int64
	client        *http.Client
	logger        *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.APIURL == "" {
		cfg.APIURL = whatsappAPIBase
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
	return &WhatsApp{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		maxMedia:      cfg.MaxMediaBytes,
		client:        cfg.HTTPClient,
		logger:        cfg.Logger,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage sends a text message via WhatsApp Cloud API.
func (w *WhatsApp) SendMessage(ctx context.Context, to, text string) (*domain.Receipt, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	var out waSendResponse
	if err := w.postJSON(ctx, w.messagesURL(), payload, &out); err != nil {
		w.logger.Error("whatsapp send failed", "err", err, "to", to)
		return nil, &domain.SendError{Recipient: to, Err: err}
	}

	receipt := &domain.Receipt{Recipient: to}
	if len(out.Messages) > 0 {
		receipt.MessageID = out.Messages[0].ID
	}
	w.logger.Debug("whatsapp message sent", "to", to, "message_id", receipt.MessageID)
	return receipt, nil
}

// MarkAsRead sets the blue ticks on an inbound message.
func (w *WhatsApp) MarkAsRead(ctx context.Context, messageID string) error {
	payload := map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	if err := w.postJSON(ctx, w.messagesURL(), payload, nil); err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

type waMediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// DownloadMedia resolves a media ID to its short-lived URL and fetches the
// bytes. A direct http(s) URL skips the resolve step.
func (w *WhatsApp) DownloadMedia(ctx context.Context, mediaRef string) ([]byte, error) {
	mediaURL := mediaRef
	if !isURL(mediaRef) {
		info, err := w.resolveMedia(ctx, mediaRef)
		if err != nil {
			return nil, &domain.MediaFetchError{Ref: mediaRef, Stage: domain.StageResolve, Err: err}
		}
		if info.FileSize > w.maxMedia {
			return nil, &domain.MediaFetchError{
				Ref:   mediaRef,
				Stage: domain.StageResolve,
				Err:   fmt.Errorf("media too large: %d bytes (limit %d)", info.FileSize, w.maxMedia),
			}
		}
		mediaURL = info.URL
	}

	data, err := fetch(ctx, w.client, mediaURL, w.authorize, w.maxMedia)
	if err != nil {
		return nil, &domain.MediaFetchError{Ref: mediaRef, Stage: domain.StageDownload, Err: err}
	}
	w.logger.Debug("whatsapp media downloaded", "ref", mediaRef, "bytes", len(data))
	return data, nil
}

func (w *WhatsApp) resolveMedia(ctx context.Context, mediaID string) (*waMediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.apiURL+"/"+url.PathEscape(mediaID), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	w.authorize(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var info waMediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode media info: %w", err)
	}
	if info.URL == "" {
		return nil, errors.New("media info has no url")
	}
	return &info, nil
}

// UploadMedia hosts data on WhatsApp and returns the new media ID.
func (w *WhatsApp) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	contentType, err := writeUploadForm(&body, data, mimeType)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/media", w.apiURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	w.authorize(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload media: %w", statusError(resp))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.ID, nil
}

// writeUploadForm encodes the media upload form into dst and returns its
// content type.
func writeUploadForm(dst io.Writer, data []byte, mimeType string) (string, error) {
	writer := multipart.NewWriter(dst)
	part, err := writer.CreateFormFile("file", "media")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("write form field: %w", err)
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return "", fmt.Errorf("write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}
	return writer.FormDataContentType(), nil
}

func (w *WhatsApp) messagesURL() string {
	return fmt.Sprintf("%s/%s/messages", w.apiURL, w.phoneNumberID)
}

func (w *WhatsApp) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	w.authorize(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("whatsapp API: %w", statusError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
