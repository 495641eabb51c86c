// Package pipeline turns inbound events into replies: language commands update
// the sender's preference, audio goes through fetch, convert and transcribe,
// everything else gets the help text.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

const (
	fallbackLanguage = "en-US"
	markReadTimeout  = 10 * time.Second
)

// Config holds all dependencies of a Pipeline. Events and Metrics are optional.
type Config struct {
	Messenger       domain.Messenger
	Store           domain.PreferenceStore
	Normalizer      domain.AudioNormalizer
	Transcriber     domain.Transcriber
	DefaultLanguage string
	MarkAsRead      bool // send read receipts when the messenger supports them
	Events          *bus.EventBus
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Pipeline processes inbound events for one messaging channel.
type Pipeline struct {
	messenger       domain.Messenger
	store           domain.PreferenceStore
	normalizer      domain.AudioNormalizer
	transcriber     domain.Transcriber
	defaultLanguage string
	markAsRead      bool
	events          *bus.EventBus
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !domain.IsLanguageSupported(cfg.DefaultLanguage) {
		cfg.DefaultLanguage = fallbackLanguage
	}
	return &Pipeline{
		messenger:       cfg.Messenger,
		store:           cfg.Store,
		normalizer:      cfg.Normalizer,
		transcriber:     cfg.Transcriber,
		defaultLanguage: cfg.DefaultLanguage,
		markAsRead:      cfg.MarkAsRead,
		events:          cfg.Events,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With("channel", cfg.Messenger.Name()),
	}
}

// Handle processes one event to completion. It never returns an error and
// never panics; every failure ends in a log line and at most one apology,
// including a transcript that could not be delivered.
func (p *Pipeline) Handle(ctx context.Context, ev domain.InboundEvent) {
	meta := ev.Meta()
	logger := p.logger.With("sender", meta.Sender, "message_id", meta.MessageID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	kind := domain.Kind(ev)
	logger.Info("processing event", "kind", kind)
	if p.metrics != nil {
		p.metrics.RecordEvent(meta.Channel, kind)
	}
	p.emit(bus.EventMessageReceived, meta, map[string]any{bus.KeyKind: kind})

	switch e := ev.(type) {
	case domain.TextEvent:
		p.handleText(ctx, logger, e)
	case domain.AudioEvent:
		p.handleAudio(ctx, logger, e)
	case domain.UnsupportedEvent:
		logger.Debug("unsupported message", "type", e.Type)
		p.reply(ctx, logger, meta, HelpReply)
	default:
		logger.Warn("dropping unknown event variant", "type", fmt.Sprintf("%T", ev))
	}
}

func (p *Pipeline) handleText(ctx context.Context, logger *slog.Logger, ev domain.TextEvent) {
	name, ok := domain.ParseLanguageCommand(ev.Body)
	if !ok {
		p.reply(ctx, logger, ev.EventMeta, HelpReply)
		return
	}

	code, ok := domain.LookupLanguage(name)
	if !ok {
		logger.Info("unsupported language requested", "language", name)
		p.reply(ctx, logger, ev.EventMeta, UnsupportedLanguageReply)
		return
	}

	p.store.Set(ev.Sender, code)
	logger.Info("language preference set", "language", code)
	if p.metrics != nil {
		p.metrics.RecordPreference(code)
	}
	p.emit(bus.EventPreferenceUpdated, ev.EventMeta, map[string]any{bus.KeyLanguage: code})
	p.reply(ctx, logger, ev.EventMeta, confirmReply(code))
}

func (p *Pipeline) handleAudio(ctx context.Context, logger *slog.Logger, ev domain.AudioEvent) {
	p.markRead(ctx, logger, ev.EventMeta)
	p.reply(ctx, logger, ev.EventMeta, AckReply)

	job := &audioJob{event: ev, language: p.languageFor(ev.Sender)}
	logger = logger.With("language", job.language)

	if err := p.runStages(ctx, job); err != nil {
		stage := domain.FailureStage(err)
		logger.Error("transcription failed", "stage", stage, "err", err)
		if p.metrics != nil {
			p.metrics.RecordFailure(stage)
		}
		p.emit(bus.EventTranscriptionFailed, ev.EventMeta, map[string]any{
			bus.KeyLanguage: job.language,
			bus.KeyStage:    stage,
			bus.KeyError:    err.Error(),
		})
		p.reply(ctx, logger, ev.EventMeta, ApologyReply)
		return
	}

	res := job.result
	logger.Info("transcription completed",
		"confidence", res.Confidence,
		"quality", res.Quality(),
		"duration_s", res.AudioDurationSeconds,
		"processing_ms", res.ProcessingTimeMs,
	)
	if p.metrics != nil {
		p.metrics.RecordTranscription(p.transcriber.Name(), job.language,
			time.Duration(res.ProcessingTimeMs)*time.Millisecond, res.Confidence, res.AudioDurationSeconds)
	}
	p.emit(bus.EventTranscriptionCompleted, ev.EventMeta, map[string]any{
		bus.KeyLanguage:     res.LanguageCode,
		bus.KeyText:         res.Text,
		bus.KeyConfidence:   res.Confidence,
		bus.KeyQuality:      res.Quality(),
		bus.KeyDuration:     res.AudioDurationSeconds,
		bus.KeyProcessingMs: res.ProcessingTimeMs,
	})
	if err := p.reply(ctx, logger, ev.EventMeta, transcriptReply(res.Text)); err != nil {
		p.reply(ctx, logger, ev.EventMeta, ApologyReply)
	}
}

// languageFor returns the sender's stored language, or the default when none
// is stored or the stored code is no longer supported.
func (p *Pipeline) languageFor(sender string) string {
	if code, ok := p.store.Get(sender); ok && domain.IsLanguageSupported(code) {
		return code
	}
	return p.defaultLanguage
}

// markRead sends a read receipt in the background. Failures only get logged.
func (p *Pipeline) markRead(ctx context.Context, logger *slog.Logger, meta domain.EventMeta) {
	if !p.markAsRead || meta.MessageID == "" {
		return
	}
	rm, ok := p.messenger.(domain.ReadMarker)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markReadTimeout)
		defer cancel()
		if err := rm.MarkAsRead(ctx, meta.MessageID); err != nil {
			logger.Debug("mark as read failed", "err", err)
		}
	}()
}

// reply sends body to the event's sender. A failed send is logged, reported
// on the event bus and returned; reply itself never retries.
func (p *Pipeline) reply(ctx context.Context, logger *slog.Logger, meta domain.EventMeta, body string) error {
	_, err := p.messenger.SendMessage(ctx, meta.Sender, body)
	if p.metrics != nil {
		p.metrics.RecordReply(meta.Channel, err)
	}
	if err == nil {
		return nil
	}

	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		err = &domain.SendError{Recipient: meta.Sender, Err: err}
	}
	logger.Error("reply failed", "err", err)
	p.emit(bus.EventReplyFailed, meta, map[string]any{bus.KeyError: err.Error()})
	return err
}

func (p *Pipeline) emit(eventType string, meta domain.EventMeta, payload map[string]any) {
	if p.events == nil {
		return
	}
	payload[bus.KeySender] = meta.Sender
	payload[bus.KeyMessageID] = meta.MessageID
	p.events.Emit(bus.Event{Type: eventType, Source: meta.Channel, Payload: payload})
}
