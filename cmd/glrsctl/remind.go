package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glrssign/internal/config"
	"glrssign/internal/database"
	"glrssign/internal/notify"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one reminder sweep now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db := database.New()
		defer db.Close()

		gateway := notify.NewGateway(cfg.SigningBaseURL, db)
		scheduler, err := notify.NewScheduler(cfg.ReminderSchedule, cfg.ReminderInterval, gateway, db)
		if err != nil {
			return err
		}
		res, err := scheduler.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d, queued %d, skipped %d, failed %d\n",
			res.Checked, res.Queued, res.Skipped, res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d reminders could not be queued", res.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(remindCmd)
}
