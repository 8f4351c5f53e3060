// Package cli implements the anchorsync command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/s4ledger/anchorsync/internal/syncer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Submitter delivers records to the ledger. Left nil, commands
	// that sync fail with an explicit "no ledger submitter wired"
	// error; tests and the production entrypoint inject one.
	Submitter syncer.LedgerSubmitter
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the anchorsync CLI.
// The submitter is the external ledger client collaborator; nil is
// accepted for commands that never touch the network.
func NewRootCommand(submitter syncer.LedgerSubmitter) *cobra.Command {
	opts := &RootOptions{Submitter: submitter}

	cmd := &cobra.Command{
		Use:   "anchorsync",
		Short: "Resilient anchor-record submission queue",
		Long: `anchorsync durably queues content-hash anchor records and delivers
them to a ledger network with circuit breaking, validator failover,
and bounded local storage for degraded or air-gapped operation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (default anchorsync.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRetryCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewValidateConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger builds the slog logger used by sync-driving commands.
// Diagnostics go to stderr so JSON output on stdout stays clean.
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
