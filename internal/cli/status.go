package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/s4ledger/anchorsync/internal/breaker"
	"github.com/s4ledger/anchorsync/internal/datacap"
	"github.com/s4ledger/anchorsync/internal/queue"
	"github.com/s4ledger/anchorsync/internal/validator"
)

// StatusReport is the full subsystem snapshot emitted by the status
// command and consumed by external health/metrics exporters.
type StatusReport struct {
	Queue      queue.Stats      `json:"queue"`
	DataCap    datacap.Usage    `json:"data_cap"`
	Breakers   []breaker.Status `json:"breakers"`
	Validators validator.Status `json:"validators"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue, breaker, and validator status",
		Long: `Show the state of the submission subsystem: queue counts, data cap
usage, circuit breaker states, and validator endpoint health.

Breaker and validator state are in-memory and reset on restart, so a
fresh invocation reports them at their healthy defaults; queue counts
and cap usage come from durable storage.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := formatter(opts, cmd)

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.queue.Stats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "read queue stats", err)
	}

	report := StatusReport{
		Queue:      stats,
		DataCap:    a.caps.GetUsage(),
		Breakers:   a.breakers.Statuses(),
		Validators: a.monitor.GetStatus(),
	}

	if opts.Format == "json" {
		return f.SuccessJSON(report)
	}
	renderStatusText(cmd.OutOrStdout(), report)
	return nil
}

// renderStatusText writes the human-readable status report.
func renderStatusText(w io.Writer, r StatusReport) {
	fmt.Fprintln(w, "Queue")
	fmt.Fprintf(w, "  pending: %d\n", r.Queue.Pending)
	fmt.Fprintf(w, "  synced:  %d\n", r.Queue.Synced)
	fmt.Fprintf(w, "  failed:  %d\n", r.Queue.Failed)
	fmt.Fprintf(w, "  total:   %d\n", r.Queue.Total)
	if r.Queue.LastSync != nil {
		fmt.Fprintf(w, "  last sync: %s\n", r.Queue.LastSync.UTC().Format(time.RFC3339))
	}
	if b := r.Queue.LastBatch; b != nil {
		fmt.Fprintf(w, "  last batch: %d synced, %d failed in %.1fs at %s\n",
			b.RecordsSynced, b.RecordsFailed, b.DurationSeconds,
			b.Timestamp.UTC().Format(time.RFC3339))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Data Cap")
	fmt.Fprintf(w, "  records: %d / %d (%.1f%%)\n", r.DataCap.Count, r.DataCap.CountLimit, r.DataCap.CountPct)
	fmt.Fprintf(w, "  storage: %.2f MB / %.0f MB (%.1f%%)\n",
		float64(r.DataCap.Bytes)/1024/1024, float64(r.DataCap.ByteLimit)/1024/1024, r.DataCap.BytePct)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Circuit Breakers")
	for _, b := range r.Breakers {
		fmt.Fprintf(w, "  %-20s %-10s failures=%d\n", b.Name, b.State, b.FailureCount)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Validators (%s)\n", r.Validators.Network)
	fmt.Fprintf(w, "  active: %s\n", r.Validators.ActiveEndpoint)
	for _, ep := range r.Validators.Endpoints {
		health := "healthy"
		if !ep.Healthy {
			health = fmt.Sprintf("unhealthy (backoff %.0fs)", ep.BackoffRemaining)
		}
		fmt.Fprintf(w, "  %-20s priority=%d %-9s failures=%d/%d\n",
			ep.ID, ep.Priority, health, ep.ConsecutiveFailures, ep.TotalFailures)
	}
}
