// Package audio converts inbound voice media into the mono 16 kHz PCM16 profile
// expected by the speech backends.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-audio/wav"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// DefaultMaxInputBytes matches the platform media limit.
const DefaultMaxInputBytes = 16 << 20

// Config for the Normalizer.
type Config struct {
	FFmpegPath    string // resolved path; empty disables the ffmpeg fallback
	MaxInputBytes int64
	Logger        *slog.Logger
}

// Normalizer implements domain.AudioNormalizer.
type Normalizer struct {
	ffmpeg   string
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Normalizer.
func New(cfg Config) *Normalizer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = DefaultMaxInputBytes
	}
	return &Normalizer{
		ffmpeg:   cfg.FFmpegPath,
		maxBytes: cfg.MaxInputBytes,
		logger:   cfg.Logger,
	}
}

// FFmpegEnabled reports whether non-native formats can be converted.
func (n *Normalizer) FFmpegEnabled() bool { return n.ffmpeg != "" }

// Validate is a cheap pre-check that raw looks convertible.
func (n *Normalizer) Validate(raw []byte) bool {
	if len(raw) == 0 || int64(len(raw)) > n.maxBytes {
		return false
	}
	switch f := DetectFormat(raw); f {
	case FormatWAV:
		return wav.NewDecoder(bytes.NewReader(raw)).IsValidFile()
	case FormatMP3, FormatVorbis:
		return true
	default:
		return n.FFmpegEnabled()
	}
}

// Convert decodes raw into normalized audio. The same input always yields the
// same output or the same error.
func (n *Normalizer) Convert(ctx context.Context, raw []byte) (*domain.NormalizedAudio, error) {
	if len(raw) == 0 {
		return nil, &domain.ConversionError{Reason: "empty input", Err: domain.ErrNoAudioStream}
	}
	if int64(len(raw)) > n.maxBytes {
		return nil, &domain.ConversionError{Reason: fmt.Sprintf("input exceeds %d bytes", n.maxBytes)}
	}

	f := DetectFormat(raw)
	var (
		out []byte
		err error
	)
	if f.native() {
		out, err = n.convertNative(f, raw)
	} else {
		out, err = n.convertFFmpeg(ctx, f, raw)
	}
	if err != nil {
		var convErr *domain.ConversionError
		if errors.As(err, &convErr) {
			return nil, err
		}
		return nil, &domain.ConversionError{Reason: string(f), Err: err}
	}
	if len(out) < domain.BitDepth/8 {
		return nil, &domain.ConversionError{Reason: string(f), Err: domain.ErrNoAudioStream}
	}

	n.logger.Debug("audio normalized", "format", f, "in_bytes", len(raw), "out_bytes", len(out))
	return &domain.NormalizedAudio{PCM: out}, nil
}

func (n *Normalizer) convertNative(f Format, raw []byte) ([]byte, error) {
	p, err := decodeNative(f, raw)
	if err != nil {
		return nil, err
	}
	if p.channels <= 0 || p.rate <= 0 {
		return nil, fmt.Errorf("invalid stream parameters: %d channels at %d Hz", p.channels, p.rate)
	}
	mono := toMono(p.samples, p.channels)
	return encodePCM16(resampleLinear(mono, p.rate, domain.SampleRate)), nil
}

func (n *Normalizer) convertFFmpeg(ctx context.Context, f Format, raw []byte) ([]byte, error) {
	if !n.FFmpegEnabled() {
		return nil, &domain.ConversionError{Reason: string(f), Err: domain.ErrUnsupportedFormat}
	}
	out, err := runFFmpeg(ctx, n.ffmpeg, raw)
	if err != nil {
		return nil, err
	}
	// Drop a trailing odd byte so the buffer holds whole samples.
	return out[:len(out)&^1], nil
}
