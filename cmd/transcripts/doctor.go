package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/audio"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/config"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/history"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Printf("  %s %s %s\n", passStyle.Render("[PASS]"), labelStyle.Render(check), detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Printf("  %s %s %s\n", failStyle.Render("[FAIL]"), labelStyle.Render(check), detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Printf("  %s %s %s\n", warnStyle.Render("[WARN]"), labelStyle.Render(check), detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the installation",
		Long: `Verifies that configuration, ffmpeg, transcription credentials, the
history database and the listen port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(titleStyle.Render("transcripts doctor v" + version))
			fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
			fmt.Println()

			var r doctorReport

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			checkChannels(&r, cfg)

			if bin := audio.LookupFFmpeg(cfg.Audio.FFmpegPath); bin != "" {
				r.pass("ffmpeg", bin)
			} else {
				r.warn("ffmpeg", fmt.Sprintf("%q not found; only WAV, MP3 and Ogg Vorbis can be converted", cfg.Audio.FFmpegPath))
			}

			checkCredentials(&r, cfg.Transcription)

			if cfg.History.Enabled {
				if err := checkHistory(cfg.History.DBPath); err != nil {
					r.fail("History database", err.Error())
				} else {
					r.pass("History database", cfg.History.DBPath)
				}
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				r.warn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Listen port", fmt.Sprintf("%s:%d available", cfg.Server.Host, cfg.Server.Port))
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.summary()
		},
	}
}

func (r *doctorReport) summary() error {
	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkChannels(r *doctorReport, cfg *config.Config) {
	cc := cfg.Channels
	enabled := 0
	if cc.WhatsApp.Enabled {
		enabled++
		r.pass("Channel: whatsapp", cc.WhatsApp.WebhookPath)
		if cc.WhatsApp.AppSecret == "" {
			r.warn("WhatsApp signature", "appSecret not set; webhook payloads are not authenticated")
		}
	}
	if cc.Twilio.Enabled {
		enabled++
		r.pass("Channel: twilio", cc.Twilio.WebhookPath)
		if cc.Twilio.PublicURL == "" {
			r.warn("Twilio signature", "publicURL not set; webhook payloads are not authenticated")
		}
	}
	if cc.Telegram.Enabled {
		enabled++
		r.pass("Channel: telegram", cc.Telegram.WebhookPath)
	}
	if enabled == 0 {
		r.fail("Channels", "no channel enabled")
	}
}

func checkCredentials(r *doctorReport, tc config.TranscriptionConfig) {
	switch tc.Backend {
	case "whisper":
		if tc.Whisper.APIKey == "" {
			r.fail("Whisper API key", "transcription.whisper.apiKey is empty")
			return
		}
		r.pass("Whisper API key", "configured")
	default:
		if tc.Google.APIKey != "" {
			r.pass("Google credentials", "API key")
			return
		}
		path := tc.Google.CredentialsPath
		if path == "" {
			path = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		}
		if path == "" {
			r.warn("Google credentials", "no API key or credentials file; relying on ambient default credentials")
			return
		}
		f, err := os.Open(path)
		if err != nil {
			r.fail("Google credentials", err.Error())
			return
		}
		f.Close()
		r.pass("Google credentials", path)
	}
}

// checkHistory opens the journal, which runs migrations, and reads its stats.
func checkHistory(dbPath string) error {
	store, err := history.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Stats(ctx); err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
