package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/audio"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/channel"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/config"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/events"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/history"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/httpclient"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/messaging"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/pipeline"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/preference"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/server"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/transcription"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/webhook"
)

const (
	mediaTimeout  = 60 * time.Second
	pruneInterval = 24 * time.Hour
	depthInterval = 5 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and transcription workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, closer, err := newLogger(cfg.General)
			if err != nil {
				return err
			}
			defer closer.Close()
			logger = log

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

// shared holds the components every channel pipeline uses.
type shared struct {
	cfg         *config.Config
	queue       *bus.Queue
	events      *bus.EventBus
	metrics     *metrics.Metrics
	store       domain.PreferenceStore
	normalizer  domain.AudioNormalizer
	transcriber domain.Transcriber
}

func runServer(ctx context.Context, cfg *config.Config) error {
	sh := &shared{
		cfg:    cfg,
		queue:  bus.NewQueue(cfg.Server.Workers, cfg.Server.QueueSize, logger),
		events: bus.NewEventBus(logger),
		store:  preference.NewMemoryStore(),
	}
	if cfg.Metrics.Enabled {
		sh.metrics = metrics.New()
	}

	ffmpeg := audio.LookupFFmpeg(cfg.Audio.FFmpegPath)
	if ffmpeg == "" {
		logger.Warn("ffmpeg not found, only WAV, MP3 and Ogg Vorbis input can be converted", "ffmpeg", cfg.Audio.FFmpegPath)
	}
	sh.normalizer = audio.New(audio.Config{
		FFmpegPath:    ffmpeg,
		MaxInputBytes: cfg.Audio.MaxInputBytes,
		Logger:        logger,
	})

	tr, err := transcription.New(ctx, cfg.Transcription, logger)
	if err != nil {
		return fmt.Errorf("transcription backend: %w", err)
	}
	sh.transcriber = tr

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DBPath, logger)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		detach := store.Attach(sh.events)
		defer detach()
		go pruneHistory(ctx, store, time.Duration(cfg.History.RetentionDays)*24*time.Hour)
	}

	if cfg.Events.Enabled {
		pub, err := events.Dial(cfg.Events.URL, cfg.Events.Exchange, logger)
		if err != nil {
			return fmt.Errorf("connect event broker: %w", err)
		}
		defer pub.Close()
		fwd := events.NewForwarder(pub, 0, logger)
		detach := fwd.Attach(sh.events)
		defer detach()

		fwdCtx, cancelFwd := context.WithCancel(context.Background())
		fwdDone := make(chan struct{})
		go func() {
			defer close(fwdDone)
			fwd.Run(fwdCtx)
		}()
		// Runs after the workers are drained, before pub.Close.
		defer func() {
			cancelFwd()
			<-fwdDone
		}()
	}

	handlers, routes, err := sh.channels()
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Queue:    sh.queue,
		Handlers: handlers,
		Metrics:  sh.metrics,
		Logger:   logger,
	})
	runner.Start(ctx)

	if sh.metrics != nil {
		go reportQueueDepth(ctx, sh.queue, sh.metrics)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}
	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MetricsPath:     metricsPath,
		ShutdownTimeout: shutdownTimeout,
		Routes:          routes,
		Metrics:         sh.metrics,
		Logger:          logger,
	})

	logger.Info("transcripts starting",
		"version", version,
		"addr", srv.Addr(),
		"channels", len(handlers),
		"backend", tr.Name(),
		"default_language", cfg.General.DefaultLanguage,
	)

	serveErr := srv.Run(ctx)

	// No more webhooks can arrive; let the workers finish what was accepted.
	sh.queue.Close()
	if err := runner.Wait(shutdownTimeout); err != nil {
		logger.Warn("shutdown incomplete", "err", err, "pending", sh.queue.Depth())
	}
	logger.Info("transcripts stopped")
	return serveErr
}

// channels builds one messenger, pipeline and webhook front-end for every
// enabled channel.
func (sh *shared) channels() (map[string]pipeline.Handler, []channel.Route, error) {
	cc := sh.cfg.Channels
	client := httpclient.Shared(mediaTimeout)
	handlers := make(map[string]pipeline.Handler)
	var routes []channel.Route

	if cc.WhatsApp.Enabled {
		m := messaging.NewWhatsApp(messaging.WhatsAppConfig{
			APIURL:        cc.WhatsApp.APIURL,
			PhoneNumberID: cc.WhatsApp.PhoneNumberID,
			AccessToken:   cc.WhatsApp.AccessToken,
			MaxMediaBytes: sh.cfg.Audio.MaxInputBytes,
			HTTPClient:    client,
			Logger:        logger,
		})
		handlers[m.Name()] = sh.pipeline(m, cc.WhatsApp.MarkAsRead)
		front := channel.NewWhatsApp(channel.WhatsAppConfig{
			Path:         cc.WhatsApp.WebhookPath,
			VerifyToken:  cc.WhatsApp.VerifyToken,
			AppSecret:    cc.WhatsApp.AppSecret,
			MaxBodyBytes: sh.cfg.Server.MaxBodyBytes,
			Normalizer:   webhook.NewWhatsApp(cc.WhatsApp.ExpectedObject, logger),
			Queue:        sh.queue,
			Metrics:      sh.metrics,
			Logger:       logger,
		})
		routes = append(routes, front.Routes()...)
	}

	if cc.Twilio.Enabled {
		m := messaging.NewTwilio(messaging.TwilioConfig{
			APIBase:       cc.Twilio.APIBase,
			AccountSID:    cc.Twilio.AccountSID,
			AuthToken:     cc.Twilio.AuthToken,
			From:          cc.Twilio.WhatsAppNumber,
			MaxMediaBytes: sh.cfg.Audio.MaxInputBytes,
			HTTPClient:    client,
			Logger:        logger,
		})
		handlers[m.Name()] = sh.pipeline(m, false)
		front := channel.NewTwilio(channel.TwilioConfig{
			Path:         cc.Twilio.WebhookPath,
			AuthToken:    cc.Twilio.AuthToken,
			PublicURL:    cc.Twilio.PublicURL,
			MaxBodyBytes: sh.cfg.Server.MaxBodyBytes,
			Normalizer:   webhook.NewTwilio(),
			Queue:        sh.queue,
			Metrics:      sh.metrics,
			Logger:       logger,
		})
		routes = append(routes, front.Routes()...)
	}

	if cc.Telegram.Enabled {
		m, err := messaging.NewTelegram(messaging.TelegramConfig{
			Token:         cc.Telegram.Token,
			APIEndpoint:   cc.Telegram.APIEndpoint,
			FileEndpoint:  cc.Telegram.FileEndpoint,
			MaxMediaBytes: sh.cfg.Audio.MaxInputBytes,
			HTTPClient:    client,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		handlers[m.Name()] = sh.pipeline(m, false)
		front := channel.NewTelegram(channel.TelegramConfig{
			Path:         cc.Telegram.WebhookPath,
			SecretToken:  cc.Telegram.SecretToken,
			MaxBodyBytes: sh.cfg.Server.MaxBodyBytes,
			Normalizer:   webhook.NewTelegram(),
			Queue:        sh.queue,
			Metrics:      sh.metrics,
			Logger:       logger,
		})
		routes = append(routes, front.Routes()...)
	}

	if len(handlers) == 0 {
		return nil, nil, errors.New("no channel enabled; enable channels.whatsapp, channels.twilio or channels.telegram")
	}
	return handlers, routes, nil
}

func (sh *shared) pipeline(m domain.Messenger, markAsRead bool) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		Messenger:       m,
		Store:           sh.store,
		Normalizer:      sh.normalizer,
		Transcriber:     sh.transcriber,
		DefaultLanguage: sh.cfg.General.DefaultLanguage,
		MarkAsRead:      markAsRead,
		Events:          sh.events,
		Metrics:         sh.metrics,
		Logger:          logger,
	})
}

// pruneHistory deletes records older than retention once at startup and then
// daily. A zero retention keeps everything.
func pruneHistory(ctx context.Context, store *history.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	prune := func() {
		if _, err := store.Prune(ctx, retention); err != nil {
			logger.Warn("history prune failed", "err", err)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func reportQueueDepth(ctx context.Context, q *bus.Queue, m *metrics.Metrics) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetQueueDepth(q.Depth())
		}
	}
}
