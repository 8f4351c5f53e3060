package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/s4ledger/anchorsync/internal/breaker"
	"github.com/s4ledger/anchorsync/internal/config"
	"github.com/s4ledger/anchorsync/internal/datacap"
	"github.com/s4ledger/anchorsync/internal/queue"
	"github.com/s4ledger/anchorsync/internal/syncer"
	"github.com/s4ledger/anchorsync/internal/validator"
)

// defaultConfigFile is probed when --config is not given.
const defaultConfigFile = "anchorsync.yaml"

// app bundles the constructed subsystem components for one command
// invocation. Breaker and validator state are in-memory and start
// fresh each invocation; they rebuild from live traffic. Queue state
// and the data cap counters derived from it are durable.
type app struct {
	cfg      *config.Config
	queue    *queue.Queue
	breakers *breaker.Registry
	monitor  *validator.Monitor
	caps     *datacap.Manager
}

// loadConfig resolves the configuration: explicit --config path, then
// anchorsync.yaml in the working directory, then built-in defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return config.Default(), nil
		}
		path = defaultConfigFile
	}

	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return nil, WrapExitError(ExitFailure, "configuration invalid", err)
		}
		return nil, WrapExitError(ExitCommandError, "configuration unreadable", err)
	}
	return cfg, nil
}

// openApp loads configuration, opens the durable queue, and constructs
// the in-memory components around it. The data cap counters are rebuilt
// from the queue's live footprint.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	q, err := queue.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open queue database", err)
	}

	monitor, err := validator.New(cfg.Network, cfg.Endpoints())
	if err != nil {
		q.Close()
		return nil, WrapExitError(ExitFailure, "validator pool", err)
	}

	caps := datacap.New(cfg.DataCapConfig())
	count, bytes, err := q.CountAndBytes(ctx)
	if err != nil {
		q.Close()
		return nil, WrapExitError(ExitCommandError, "rebuild data cap counters", err)
	}
	caps.Reset(count, bytes)

	return &app{
		cfg:      cfg,
		queue:    q,
		breakers: breaker.NewRegistry(cfg.BreakerConfigs()),
		monitor:  monitor,
		caps:     caps,
	}, nil
}

// Close releases the durable resources.
func (a *app) Close() error {
	return a.queue.Close()
}

// ledgerBreaker returns the breaker guarding the ledger dependency.
// Always present: config guarantees the entry.
func (a *app) ledgerBreaker() *breaker.Breaker {
	return a.breakers.Get(config.LedgerDependency)
}

// driver constructs the batch sync driver around the app components.
func (a *app) driver(opts *RootOptions, logger *slog.Logger) (*syncer.Driver, error) {
	submitter := opts.Submitter
	if submitter == nil {
		return nil, NewExitError(ExitCommandError,
			"no ledger submitter wired: the ledger client collaborator is not part of this build")
	}
	return syncer.New(
		a.queue,
		a.ledgerBreaker(),
		a.monitor,
		a.caps,
		submitter,
		a.cfg.SyncerConfig(),
		syncer.WithLogger(logger),
	), nil
}

// formatter builds the output formatter for a command.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
