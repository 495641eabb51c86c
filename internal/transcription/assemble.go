// Package transcription sends normalized audio to a speech backend and turns
// the backend's segments into a single TranscriptionResult.
package transcription

import (
	"strings"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// segment is the top alternative of one recognized span.
type segment struct {
	text       string
	confidence float64
}

// assemble joins segment texts verbatim with single spaces and averages
// their confidences over every segment. No segments means no speech: empty
// text, zero confidence.
func assemble(segs []segment, languageCode string, audio *domain.NormalizedAudio, elapsed time.Duration) *domain.TranscriptionResult {
	texts := make([]string, len(segs))
	var sum float64
	for i, s := range segs {
		texts[i] = s.text
		sum += domain.ClampConfidence(s.confidence)
	}
	var confidence float64
	if len(segs) > 0 {
		confidence = sum / float64(len(segs))
	}
	return &domain.TranscriptionResult{
		Text:                 strings.Join(texts, " "),
		LanguageCode:         languageCode,
		Confidence:           domain.ClampConfidence(confidence),
		AudioDurationSeconds: audio.Duration().Seconds(),
		ProcessingTimeMs:     elapsed.Milliseconds(),
	}
}
