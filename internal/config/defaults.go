package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			LogFormat:       "text",
			DefaultLanguage: "en-US",
		},
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   3000,
			Workers:                8,
			QueueSize:              64,
			MaxBodyBytes:           1 << 20,
			ShutdownTimeoutSeconds: 10,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:        false,
				APIURL:         "https://graph.facebook.com/v18.0",
				WebhookPath:    "/webhook",
				ExpectedObject: "whatsapp_business_account",
				MarkAsRead:     true,
			},
			Twilio: TwilioConfig{
				Enabled:     false,
				APIBase:     "https://api.twilio.com/2010-04-01",
				WebhookPath: "/webhook/twilio",
			},
			Telegram: TelegramConfig{
				Enabled:     false,
				WebhookPath: "/webhook/telegram",
			},
		},
		Audio: AudioConfig{
			FFmpegPath:    "ffmpeg",
			MaxInputBytes: 16 << 20,
		},
		Transcription: TranscriptionConfig{
			Backend:        "google",
			TimeoutSeconds: 120,
			Google: GoogleSpeechConfig{
				Endpoint: "https://speech.googleapis.com",
				Model:    "default",
			},
			Whisper: WhisperConfig{
				APIBase: "https://api.openai.com/v1",
				Model:   "whisper-1",
			},
		},
		History: HistoryConfig{
			Enabled:       false,
			DBPath:        "~/.transcripts/history.db",
			RetentionDays: 90,
		},
		Events: EventsConfig{
			Enabled:  false,
			Exchange: "transcripts.events",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
