package domain

import "context"

// Receipt acknowledges a delivered outbound message.
type Receipt struct {
	MessageID string
	Recipient string
}

// Messenger sends replies and fetches media on a messaging platform.
type Messenger interface {
	Name() string
	SendMessage(ctx context.Context, recipient, body string) (*Receipt, error)
	DownloadMedia(ctx context.Context, mediaRef string) ([]byte, error)
}

// MediaUploader is implemented by messengers that can host media.
type MediaUploader interface {
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ReadMarker is implemented by messengers that support read receipts.
type ReadMarker interface {
	MarkAsRead(ctx context.Context, messageID string) error
}

// AudioNormalizer converts arbitrary audio bytes into NormalizedAudio.
type AudioNormalizer interface {
	Convert(ctx context.Context, raw []byte) (*NormalizedAudio, error)
	Validate(raw []byte) bool
}

// Transcriber sends normalized audio to a speech backend.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio *NormalizedAudio, languageCode string) (*TranscriptionResult, error)
}

// PreferenceStore holds each sender's transcription language.
type PreferenceStore interface {
	Set(sender, languageCode string)
	Get(sender string) (string, bool)
}

// EventNormalizer turns a raw webhook body into inbound events. Problems with
// individual entries are reported as errors and never stop the others.
type EventNormalizer interface {
	Normalize(body []byte) ([]InboundEvent, []error)
}
