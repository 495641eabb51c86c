package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/audio"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/transcription"
)

func transcribeCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe a local audio file with the configured backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if language == "" {
				language = cfg.General.DefaultLanguage
			}
			code, err := resolveLanguage(language)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			norm := audio.New(audio.Config{
				FFmpegPath:    audio.LookupFFmpeg(cfg.Audio.FFmpegPath),
				MaxInputBytes: cfg.Audio.MaxInputBytes,
				Logger:        logger,
			})
			if !norm.Validate(raw) {
				return fmt.Errorf("%s: unrecognized audio input", args[0])
			}
			pcm, err := norm.Convert(ctx, raw)
			if err != nil {
				return err
			}

			tr, err := transcription.New(ctx, cfg.Transcription, logger)
			if err != nil {
				return fmt.Errorf("transcription backend: %w", err)
			}
			res, err := tr.Transcribe(ctx, pcm, code)
			if err != nil {
				return err
			}

			quality := res.Quality()
			fmt.Println(transcriptStyle.Render(res.Text))
			fmt.Printf("%s %s\n", labelStyle.Render("Language"), domain.LanguageDisplayName(res.LanguageCode))
			fmt.Printf("%s %.2f (%s)\n", labelStyle.Render("Confidence"), res.Confidence, qualityStyle(quality).Render(quality))
			fmt.Printf("%s %.1fs\n", labelStyle.Render("Audio"), res.AudioDurationSeconds)
			fmt.Printf("%s %dms\n", labelStyle.Render("Processing"), res.ProcessingTimeMs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", `language name or code, e.g. "Hebrew" or "he-IL" (default: general.defaultLanguage)`)
	return cmd
}

// resolveLanguage accepts a supported code or a display name.
func resolveLanguage(s string) (string, error) {
	if domain.IsLanguageSupported(s) {
		return s, nil
	}
	if code, ok := domain.LookupLanguage(s); ok {
		return code, nil
	}
	return "", fmt.Errorf("unsupported language %q (use English or Hebrew)", s)
}
