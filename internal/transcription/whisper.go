package transcription

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/audio"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
)

// WhisperConfig configures the Whisper speech-to-text backend.
type WhisperConfig struct {
	APIBase    string // e.g., "https://api.groq.com/openai/v1" or "https://api.openai.com/v1"
	APIKey     string
	Model      string // e.g., "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Whisper transcribes through an OpenAI-compatible audio/transcriptions API.
type Whisper struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewWhisper creates a Whisper transcriber.
func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.APIBase
	oc.HTTPClient = cfg.HTTPClient
	return &Whisper{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (w *Whisper) Name() string { return "whisper" }

// Transcribe uploads audio as a WAV file. Whisper takes ISO-639-1 codes, so
// the region subtag is dropped on the way out.
func (w *Whisper) Transcribe(ctx context.Context, a *domain.NormalizedAudio, languageCode string) (*domain.TranscriptionResult, error) {
	start := time.Now()

	wav, err := audio.EncodeWAV(a)
	if err != nil {
		return nil, &domain.TranscriptionError{Language: languageCode, Err: err}
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: domain.LanguageBase(languageCode),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, &domain.TranscriptionError{Language: languageCode, Err: fmt.Errorf("whisper API request: %w", err)}
	}

	segs := make([]segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		// Whisper prefixes each segment with a space.
		segs = append(segs, segment{text: strings.TrimSpace(s.Text), confidence: math.Exp(s.AvgLogprob)})
	}
	if len(segs) == 0 && resp.Text != "" {
		// Plain json responses carry no per-segment scores.
		segs = append(segs, segment{text: resp.Text})
	}

	result := assemble(segs, languageCode, a, time.Since(start))
	w.logger.Info("transcription complete",
		"backend", w.Name(),
		"language", languageCode,
		"text_len", len(result.Text),
		"confidence", result.Confidence,
		"processing_ms", result.ProcessingTimeMs,
	)
	return result, nil
}
