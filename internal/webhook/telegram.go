package webhook

import (
	"encoding/json"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// Telegram normalizes Bot API webhook updates. The sender is the chat ID, so
// replies land in the chat the voice note came from.
type Telegram struct{}

func NewTelegram() *Telegram { return &Telegram{} }

// Normalize implements domain.EventNormalizer for a JSON Update.
func (t *Telegram) Normalize(body []byte) ([]domain.InboundEvent, []error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, []error{&domain.MalformedEventError{Path: "$", Reason: err.Error()}}
	}
	msg := update.Message
	if msg == nil {
		// Edits, callbacks and channel posts carry nothing to transcribe.
		return nil, nil
	}
	if msg.Chat == nil {
		return nil, []error{&domain.MalformedEventError{Path: "message.chat", Reason: "missing sender"}}
	}

	meta := domain.EventMeta{
		Channel:    "telegram",
		Sender:     strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:  strconv.Itoa(msg.MessageID),
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	}

	var ev domain.InboundEvent
	switch {
	case msg.Voice != nil:
		ev = domain.AudioEvent{EventMeta: meta, MediaRef: msg.Voice.FileID, MimeType: msg.Voice.MimeType}
	case msg.Audio != nil:
		ev = domain.AudioEvent{EventMeta: meta, MediaRef: msg.Audio.FileID, MimeType: msg.Audio.MimeType}
	case isLanguageCommand(msg.Text):
		ev = domain.TextEvent{EventMeta: meta, Body: msg.Text}
	default:
		ev = domain.UnsupportedEvent{EventMeta: meta, Type: telegramType(msg)}
	}
	return []domain.InboundEvent{ev}, nil
}

func telegramType(msg *tgbotapi.Message) string {
	switch {
	case msg.Text != "":
		return "text"
	case msg.Photo != nil:
		return "photo"
	case msg.Document != nil:
		return "document"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Video != nil:
		return "video"
	default:
		return "other"
	}
}
