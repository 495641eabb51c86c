package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/history"
)

func historyCmd() *cobra.Command {
	var (
		limit    int
		sender   string
		failures bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transcriptions from the history journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled; set history.enabled to true")
			}
			store, err := history.Open(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if failures {
				rows, err := store.RecentFailures(ctx, limit)
				if err != nil {
					return err
				}
				for _, f := range rows {
					fmt.Printf("%s %s %s %s\n  %s\n",
						dimStyle.Render(f.CreatedAt.Format(time.DateTime)),
						f.Channel, f.Sender, failStyle.Render(f.Stage), f.Error)
				}
			} else {
				rows, err := store.Recent(ctx, sender, limit)
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Printf("%s %s %s %s %s\n  %s\n",
						dimStyle.Render(r.CreatedAt.Format(time.DateTime)),
						r.Channel, r.Sender, r.Language,
						qualityStyle(r.Quality).Render(fmt.Sprintf("%.2f", r.Confidence)),
						r.Text)
				}
			}

			st, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Println(dimStyle.Render(fmt.Sprintf("%d transcripts, %d failures, average confidence %.2f",
				st.Transcripts, st.Failures, st.AvgConfidence)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.Flags().StringVar(&sender, "sender", "", "only show transcripts for this sender")
	cmd.Flags().BoolVar(&failures, "failures", false, "show failed transcriptions instead")
	return cmd
}
