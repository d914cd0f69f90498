package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlearn/pulse/internal/aggregate"
	"github.com/lumenlearn/pulse/internal/config"
	"github.com/lumenlearn/pulse/internal/retention"
	"github.com/lumenlearn/pulse/internal/schedule"
	"github.com/lumenlearn/pulse/internal/store/postgres"
)

var (
	backfillFrom string
	backfillTo   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute daily aggregations over a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := time.Parse("2006-01-02", backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
		to := time.Now().UTC().Truncate(24 * time.Hour)
		if backfillTo != "" {
			if to, err = time.Parse("2006-01-02", backfillTo); err != nil {
				return fmt.Errorf("invalid --to date: %w", err)
			}
		}
		if to.Before(from) {
			return fmt.Errorf("--to must not precede --from")
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		aggService := aggregate.NewService(store, logger)
		retService := retention.NewService(store, retention.Options{}, logger)
		scheduler := schedule.New(aggService, retService, logger)

		if err := scheduler.Backfill(cmd.Context(), from, to); err != nil {
			return err
		}
		return retService.Recalculate(cmd.Context(), to)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "start date (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "end date (YYYY-MM-DD, default today)")
	_ = backfillCmd.MarkFlagRequired("from")
}
