package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Run the retention sweep once",
	Long: `Archive every completed document received before the retention
threshold, then send overdue notices. Useful from an external scheduler.`,
	RunE: runRetention,
}

var skipOverdue bool

func init() {
	retentionCmd.Flags().BoolVar(&skipOverdue, "skip-overdue", false, "only archive, do not send overdue notices")
	rootCmd.AddCommand(retentionCmd)
}

func runRetention(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, "smartdocs-retention", true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	result, err := a.retention.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("days", result.Days).
		Time("threshold", result.Threshold).
		Int("scanned", result.Scanned).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Msg("Retention sweep finished")

	if skipOverdue {
		return nil
	}

	notified, err := a.overdue.NotifyOverdue(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("notified", notified).Msg("Overdue notices sent")
	return nil
}
