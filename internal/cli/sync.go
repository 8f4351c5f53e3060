package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one batch sync against the ledger",
		Long: `Pull pending records from the queue and submit each one to the
healthiest validator endpoint. Stops early if the ledger circuit
breaker trips mid-batch; skipped records stay pending.

Exits 1 when any record in the batch failed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(rootOpts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := formatter(rootOpts, cmd)

	a, err := openApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	driver, err := a.driver(rootOpts, newLogger(rootOpts))
	if err != nil {
		return err
	}

	result, err := driver.SyncOnce(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "batch sync", err)
	}

	if rootOpts.Format == "json" {
		if err := f.SuccessJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Batch: %d attempted, %d synced, %d failed, %d skipped (%.1fs)\n",
			result.Attempted, result.Synced, result.Failed, result.Skipped, result.Duration.Seconds())
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed to sync", result.Failed))
	}
	return nil
}
