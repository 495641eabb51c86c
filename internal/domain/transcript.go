package domain

import (
	"math"
	"time"
)

// Normalized audio profile: mono, 16 kHz, signed 16-bit little-endian PCM.
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

// NormalizedAudio is a PCM buffer in the fixed profile above. It belongs to a
// single pipeline execution and is never shared.
type NormalizedAudio struct {
	PCM []byte
}

// Samples returns the number of 16-bit samples in the buffer.
func (a *NormalizedAudio) Samples() int {
	return len(a.PCM) / (BitDepth / 8)
}

// Duration returns the playback length of the buffer.
func (a *NormalizedAudio) Duration() time.Duration {
	return time.Duration(a.Samples()) * time.Second / SampleRate
}

// TranscriptionResult is the outcome of one transcription request. Text may be
// empty, which means no speech was detected.
type TranscriptionResult struct {
	Text                 string  `json:"text"`
	LanguageCode         string  `json:"language_code"`
	Confidence           float64 `json:"confidence"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
	ProcessingTimeMs     int64   `json:"processing_time_ms"`
}

// Quality ratings derived from confidence.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityFair      = "fair"
	QualityPoor      = "poor"
)

// Quality maps the confidence score to a rating.
func (r *TranscriptionResult) Quality() string {
	switch c := r.Confidence; {
	case c >= 0.9:
		return QualityExcellent
	case c >= 0.75:
		return QualityGood
	case c >= 0.6:
		return QualityFair
	default:
		return QualityPoor
	}
}

// ClampConfidence forces c into [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
