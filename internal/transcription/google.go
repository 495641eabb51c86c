package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
)

const (
	googleScope           = "https://www.googleapis.com/auth/cloud-platform"
	defaultGoogleEndpoint = "https://speech.googleapis.com"
	maxErrorBody          = 4096
)

// GoogleConfig configures the Google Cloud Speech backend.
type GoogleConfig struct {
	Endpoint    string // e.g. "https://speech.googleapis.com"
	APIKey      string // used when TokenSource is nil
	Model       string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Google transcribes through the speech:recognize REST method.
type Google struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewGoogle creates a Google Speech transcriber.
func NewGoogle(cfg GoogleConfig) *Google {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultGoogleEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "default"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.HTTPClient
	if cfg.TokenSource != nil {
		client = &http.Client{
			Timeout:   cfg.HTTPClient.Timeout,
			Transport: &oauth2.Transport{Source: cfg.TokenSource, Base: cfg.HTTPClient.Transport},
		}
	}
	return &Google{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   client,
		logger:   cfg.Logger,
	}
}

// GoogleTokenSource loads service-account credentials from path, or the
// application default credentials when path is empty.
func GoogleTokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	if path == "" {
		creds, err := google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, googleScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return creds.TokenSource, nil
}

func (g *Google) Name() string { return "google" }

type recognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	AudioChannelCount          int    `json:"audioChannelCount"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	Model                      string `json:"model"`
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		LanguageCode string `json:"languageCode"`
	} `json:"results"`
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Transcribe sends audio for synchronous recognition in languageCode.
func (g *Google) Transcribe(ctx context.Context, audio *domain.NormalizedAudio, languageCode string) (*domain.TranscriptionResult, error) {
	start := time.Now()

	segs, err := g.recognize(ctx, audio, languageCode)
	if err != nil {
		return nil, &domain.TranscriptionError{Language: languageCode, Err: err}
	}

	result := assemble(segs, languageCode, audio, time.Since(start))
	g.logger.Info("transcription complete",
		"backend", g.Name(),
		"language", languageCode,
		"text_len", len(result.Text),
		"confidence", result.Confidence,
		"processing_ms", result.ProcessingTimeMs,
	)
	return result, nil
}

func (g *Google) recognize(ctx context.Context, audio *domain.NormalizedAudio, languageCode string) ([]segment, error) {
	var body recognizeRequest
	body.Config = recognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHertz:            domain.SampleRate,
		AudioChannelCount:          domain.Channels,
		LanguageCode:               languageCode,
		EnableAutomaticPunctuation: true,
		Model:                      g.model,
	}
	body.Audio.Content = base64.StdEncoding.EncodeToString(audio.PCM)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := g.endpoint + "/v1/speech:recognize"
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var gerr googleError
		if json.Unmarshal(respBody, &gerr) == nil && gerr.Error.Message != "" {
			return nil, fmt.Errorf("speech API error (status %d, %s): %s", resp.StatusCode, gerr.Error.Status, gerr.Error.Message)
		}
		return nil, fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode speech response: %w", err)
	}

	segs := make([]segment, 0, len(result.Results))
	for _, r := range result.Results {
		// A result with no alternatives still counts toward the mean.
		if len(r.Alternatives) == 0 {
			segs = append(segs, segment{})
			continue
		}
		top := r.Alternatives[0]
		segs = append(segs, segment{text: top.Transcript, confidence: top.Confidence})
	}
	return segs, nil
}
