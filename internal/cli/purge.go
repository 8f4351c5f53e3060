package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PurgeResult is the JSON payload for the purge command.
type PurgeResult struct {
	Deleted       int64 `json:"deleted"`
	OlderThanDays int   `json:"older_than_days"`
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete synced records older than the retention window",
		Long: `Delete synced records whose confirmation is older than the retention
window. Pending and failed records are never purged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(rootOpts, cmd, olderThanDays)
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "retention window in days (default from config)")

	return cmd
}

func runPurge(rootOpts *RootOptions, cmd *cobra.Command, olderThanDays int) error {
	ctx := cmd.Context()
	f := formatter(rootOpts, cmd)

	a, err := openApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	if olderThanDays <= 0 {
		olderThanDays = a.cfg.PurgeAfterDays
	}

	n, err := a.queue.PurgeSynced(ctx, olderThanDays)
	if err != nil {
		return WrapExitError(ExitCommandError, "purge synced records", err)
	}

	if rootOpts.Format == "json" {
		return f.SuccessJSON(PurgeResult{Deleted: n, OlderThanDays: olderThanDays})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d synced record(s) older than %d day(s)\n", n, olderThanDays)
	return nil
}
