package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when no decoder accepts the input.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoAudioStream is returned when the input decodes to zero samples.
	ErrNoAudioStream = errors.New("no audio stream")
	// ErrMissingMediaRef is returned when an audio message carries no media
	// reference to resolve.
	ErrMissingMediaRef = errors.New("audio message has no media reference")
)

// MalformedEventError describes a webhook sub-entry that was skipped.
type MalformedEventError struct {
	Path   string // e.g. entry[0].changes[1].messages[2]
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event at %s: %s", e.Path, e.Reason)
}

// Media fetch stages.
const (
	StageResolve  = "resolve"
	StageDownload = "download"
)

// MediaFetchError is returned when a media reference cannot be resolved or
// its bytes cannot be downloaded.
type MediaFetchError struct {
	Ref   string
	Stage string
	Err   error
}

func (e *MediaFetchError) Error() string {
	return fmt.Sprintf("media %s (%s): %v", e.Stage, e.Ref, e.Err)
}

func (e *MediaFetchError) Unwrap() error { return e.Err }

// ConversionError is returned when input bytes cannot be turned into
// normalized audio. It is deterministic for the same input.
type ConversionError struct {
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return "audio conversion failed: " + e.Reason
	}
	return fmt.Sprintf("audio conversion failed: %s: %v", e.Reason, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// TranscriptionError wraps a speech backend failure (network, auth, quota).
type TranscriptionError struct {
	Language string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription (%s) failed: %v", e.Language, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// SendError wraps a reply delivery failure.
type SendError struct {
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// FailureStage classifies an audio-path error for logs and metrics.
func FailureStage(err error) string {
	var (
		mediaErr *MediaFetchError
		convErr  *ConversionError
		trErr    *TranscriptionError
		sendErr  *SendError
	)
	switch {
	case errors.As(err, &mediaErr):
		return "media"
	case errors.As(err, &convErr):
		return "convert"
	case errors.As(err, &trErr):
		return "transcribe"
	case errors.As(err, &sendErr):
		return "send"
	default:
		return "unknown"
	}
}
