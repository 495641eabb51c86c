package domain

import "time"

// EventMeta carries the fields every inbound event has in common.
type EventMeta struct {
	Channel    string    // front-end that produced the event: whatsapp | twilio | telegram
	Sender     string    // opaque platform address, used as the reply recipient
	MessageID  string    // platform message id, may be empty
	ReceivedAt time.Time
}

// InboundEvent is a normalized webhook message. The set of implementations is
// closed: TextEvent, AudioEvent and UnsupportedEvent.
type InboundEvent interface {
	Meta() EventMeta
	isInboundEvent()
}

// TextEvent is a text message whose body is a language command.
type TextEvent struct {
	EventMeta
	Body string
}

// AudioEvent is a message carrying an audio attachment.
type AudioEvent struct {
	EventMeta
	MediaRef string // media id or direct URL, resolved by the Messenger
	MimeType string
}

// UnsupportedEvent is any other message: plain text, images, stickers, etc.
type UnsupportedEvent struct {
	EventMeta
	Type string // platform message type, for logging
}

func (e TextEvent) Meta() EventMeta        { return e.EventMeta }
func (e AudioEvent) Meta() EventMeta       { return e.EventMeta }
func (e UnsupportedEvent) Meta() EventMeta { return e.EventMeta }

func (TextEvent) isInboundEvent()        {}
func (AudioEvent) isInboundEvent()       {}
func (UnsupportedEvent) isInboundEvent() {}

// Kind returns a short label for the event variant (used in logs and metrics).
func Kind(ev InboundEvent) string {
	switch ev.(type) {
	case TextEvent:
		return "text"
	case AudioEvent:
		return "audio"
	case UnsupportedEvent:
		return "unsupported"
	default:
		return "unknown"
	}
}
