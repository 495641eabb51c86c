package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/config"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
)

// New builds the configured backend.
func New(ctx context.Context, cfg config.TranscriptionConfig, logger *slog.Logger) (domain.Transcriber, error) {
	client := httpclient.Shared(time.Duration(cfg.TimeoutSeconds) * time.Second)

	switch cfg.Backend {
	case "google", "":
		gc := GoogleConfig{
			Endpoint:   cfg.Google.Endpoint,
			APIKey:     cfg.Google.APIKey,
			Model:      cfg.Google.Model,
			HTTPClient: client,
			Logger:     logger,
		}
		if cfg.Google.APIKey == "" {
			ts, err := GoogleTokenSource(ctx, cfg.Google.CredentialsPath)
			if err != nil {
				return nil, fmt.Errorf("google speech credentials: %w", err)
			}
			gc.TokenSource = ts
		}
		return NewGoogle(gc), nil
	case "whisper":
		return NewWhisper(WhisperConfig{
			APIBase:    cfg.Whisper.APIBase,
			APIKey:     cfg.Whisper.APIKey,
			Model:      cfg.Whisper.Model,
			HTTPClient: client,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend: %s", cfg.Backend)
	}
}
