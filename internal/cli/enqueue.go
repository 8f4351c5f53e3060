package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/s4ledger/anchorsync/internal/fingerprint"
	"github.com/s4ledger/anchorsync/internal/queue"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	RecordType  string
	Branch      string
	Encrypted   bool
	PayloadFile string
}

// EnqueueResult is the JSON payload for a successful enqueue.
type EnqueueResult struct {
	ID          int64  `json:"id"`
	Fingerprint string `json:"fingerprint"`
	RecordType  string `json:"record_type"`
	Branch      string `json:"branch"`
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{}

	cmd := &cobra.Command{
		Use:   "enqueue <fingerprint>",
		Short: "Add an anchor record to the submission queue",
		Long: `Add an anchor record to the durable submission queue. The argument is
the record's content fingerprint, or "-" to compute it from the file
given with --payload-file.

Admission is subject to the data cap: when the queue is at its record
or storage limit the record is refused and the command exits 1.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(rootOpts, opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.RecordType, "type", "document", "record type label")
	cmd.Flags().StringVar(&opts.Branch, "branch", queue.DefaultBranch, "originating branch")
	cmd.Flags().BoolVar(&opts.Encrypted, "encrypted", false, "mark the payload as encrypted")
	cmd.Flags().StringVar(&opts.PayloadFile, "payload-file", "", "JSON payload to store alongside the record")

	return cmd
}

func runEnqueue(rootOpts *RootOptions, opts *EnqueueOptions, cmd *cobra.Command, arg string) error {
	ctx := cmd.Context()
	f := formatter(rootOpts, cmd)

	var payload []byte
	if opts.PayloadFile != "" {
		data, err := os.ReadFile(opts.PayloadFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "read payload file", err)
		}
		payload = data
	}

	fp := arg
	if fp == "-" {
		if payload == nil {
			return NewExitError(ExitCommandError, "fingerprint \"-\" requires --payload-file")
		}
		fp = fingerprint.Record(payload)
		f.VerboseLog("computed fingerprint %s from %s", fp, opts.PayloadFile)
	}

	a, err := openApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, reason := a.caps.CanEnqueue(int64(len(payload))); !ok {
		if rootOpts.Format == "json" {
			f.Error("DATA_CAP", reason, nil)
		}
		return NewExitError(ExitFailure, reason)
	}

	id, err := a.queue.Enqueue(ctx, fp, opts.RecordType, payload, opts.Encrypted, opts.Branch)
	if err != nil {
		return WrapExitError(ExitCommandError, "enqueue record", err)
	}
	a.caps.RecordEnqueued(int64(len(payload)))

	if rootOpts.Format == "json" {
		return f.SuccessJSON(EnqueueResult{
			ID:          id,
			Fingerprint: fp,
			RecordType:  opts.RecordType,
			Branch:      opts.Branch,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued record %d (%s)\n", id, fp)
	return nil
}
