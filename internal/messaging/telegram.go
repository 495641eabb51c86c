package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
)

// TelegramConfig configures the Telegram Bot API client.
type TelegramConfig struct {
	Token         string
	APIEndpoint   string // format "https://api.telegram.org/bot%s/%s"
	FileEndpoint  string // format "https://api.telegram.org/file/bot%s/%s"
	MaxMediaBytes int64
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Telegram implements domain.Messenger using the Bot API. Recipients are chat IDs.
type Telegram struct {
	bot          *tgbotapi.BotAPI
	token        string
	fileEndpoint string
	maxMedia     int64
	client       *http.Client
	logger       *slog.Logger
}

// NewTelegram connects to the Bot API and checks the token with getMe.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	cfg.Logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	return &Telegram{
		bot:          bot,
		token:        cfg.Token,
		fileEndpoint: cfg.FileEndpoint,
		maxMedia:     cfg.MaxMediaBytes,
		client:       cfg.HTTPClient,
		logger:       cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// SendMessage sends plain text to the chat identified by recipient.
func (t *Telegram) SendMessage(_ context.Context, recipient, text string) (*domain.Receipt, error) {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return nil, &domain.SendError{Recipient: recipient, Err: fmt.Errorf("invalid chat id: %w", err)}
	}

	sent, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		t.logger.Error("telegram send failed", "err", err, "chat", chatID)
		return nil, &domain.SendError{Recipient: recipient, Err: err}
	}
	return &domain.Receipt{MessageID: strconv.Itoa(sent.MessageID), Recipient: recipient}, nil
}

// DownloadMedia resolves a file_id with getFile and downloads the file.
func (t *Telegram) DownloadMedia(ctx context.Context, fileID string) ([]byte, error) {
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, &domain.MediaFetchError{Ref: fileID, Stage: domain.StageResolve, Err: err}
	}
	if int64(file.FileSize) > t.maxMedia {
		return nil, &domain.MediaFetchError{
			Ref:   fileID,
			Stage: domain.StageResolve,
			Err:   fmt.Errorf("media too large: %d bytes (limit %d)", file.FileSize, t.maxMedia),
		}
	}

	link := fmt.Sprintf(t.fileEndpoint, t.token, file.FilePath)
	data, err := fetch(ctx, t.client, link, nil, t.maxMedia)
	if err != nil {
		return nil, &domain.MediaFetchError{Ref: fileID, Stage: domain.StageDownload, Err: err}
	}
	return data, nil
}
