package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s4ledger/anchorsync/internal/config"
)

// ValidateConfigResult is the JSON payload for validate-config.
type ValidateConfigResult struct {
	File    string `json:"file"`
	Valid   bool   `json:"valid"`
	Network string `json:"network,omitempty"`
}

// NewValidateConfigCommand creates the validate-config command.
func NewValidateConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config <file>",
		Short: "Validate a configuration file",
		Long: `Validate a YAML configuration file against the built-in schema.
Unknown fields, wrong types, and out-of-range values are reported
with their paths. Exits 1 on an invalid file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runValidateConfig(rootOpts *RootOptions, cmd *cobra.Command, path string) error {
	f := formatter(rootOpts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			if rootOpts.Format == "json" {
				f.Error("INVALID_CONFIG", "configuration invalid", verr.Details)
			}
			return WrapExitError(ExitFailure, "configuration invalid", err)
		}
		return WrapExitError(ExitCommandError, "read configuration", err)
	}

	if rootOpts.Format == "json" {
		return f.SuccessJSON(ValidateConfigResult{File: path, Valid: true, Network: cfg.Network})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (network %s)\n", path, cfg.Network)
	return nil
}
