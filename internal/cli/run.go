package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync loop until interrupted",
		Long: `Run the batch sync loop on the configured interval until SIGINT or
SIGTERM. Each tick behaves like a single "sync" invocation; batch
errors are logged and do not stop the loop.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(rootOpts, cmd)
		},
	}
	return cmd
}

func runLoop(rootOpts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := newLogger(rootOpts)
	driver, err := a.driver(rootOpts, logger)
	if err != nil {
		return err
	}

	logger.Info("sync loop starting",
		"network", a.cfg.Network,
		"interval", a.cfg.SyncerConfig().Interval)

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "sync loop", err)
	}
	logger.Info("sync loop stopped")
	return nil
}
