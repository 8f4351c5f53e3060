package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RetryResult is the JSON payload for the retry command.
type RetryResult struct {
	Requeued    int64 `json:"requeued"`
	MaxAttempts int   `json:"max_attempts"`
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	var maxAttempts int

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-queue failed records for another sync attempt",
		Long: `Flip failed records back to pending so the next sync picks them up.
Records at or past the attempt ceiling stay failed and need manual
intervention.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(rootOpts, cmd, maxAttempts)
		},
	}

	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt ceiling (default from config)")

	return cmd
}

func runRetry(rootOpts *RootOptions, cmd *cobra.Command, maxAttempts int) error {
	ctx := cmd.Context()
	f := formatter(rootOpts, cmd)

	a, err := openApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	if maxAttempts <= 0 {
		maxAttempts = a.cfg.SyncerConfig().MaxAttempts
	}

	n, err := a.queue.RetryFailed(ctx, maxAttempts)
	if err != nil {
		return WrapExitError(ExitCommandError, "retry failed records", err)
	}

	if rootOpts.Format == "json" {
		return f.SuccessJSON(RetryResult{Requeued: n, MaxAttempts: maxAttempts})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Re-queued %d failed record(s)\n", n)
	return nil
}
