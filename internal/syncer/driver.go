// Package syncer drives batch delivery of queued anchor records to the
// ledger.
//
// The driver is the only mutator of queue records after enqueue. It
// pulls pending work oldest-first, consults the circuit breaker before
// touching the network, asks the validator monitor where to send each
// record, submits through the LedgerSubmitter collaborator with a
// per-attempt deadline, and reports every outcome back to the queue,
// the breaker, the monitor, and the data cap manager.
//
// Exactly one driver instance runs against a given queue (single-writer
// discipline); scaling out requires a claim/lease scheme this package
// deliberately does not implement.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/s4ledger/anchorsync/internal/breaker"
	"github.com/s4ledger/anchorsync/internal/datacap"
	"github.com/s4ledger/anchorsync/internal/fingerprint"
	"github.com/s4ledger/anchorsync/internal/queue"
	"github.com/s4ledger/anchorsync/internal/validator"
)

// Defaults for the batch loop.
const (
	DefaultBatchSize      = 100
	DefaultMaxAttempts    = 5
	DefaultAttemptTimeout = 15 * time.Second
	DefaultInterval       = 60 * time.Second
)

// Config holds the batch loop tuning knobs. Zero values take the
// package defaults.
type Config struct {
	// BatchSize is the maximum records pulled per batch.
	BatchSize int
	// MaxAttempts is the retry ceiling; failed records at or above it
	// stay failed until an operator intervenes.
	MaxAttempts int
	// AttemptTimeout bounds each submission. A hung network call must
	// not block breaker bookkeeping indefinitely.
	AttemptTimeout time.Duration
	// Interval is the period between batches in Run.
	Interval time.Duration
	// AutoRetry re-queues eligible failed records before each batch.
	AutoRetry bool
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Result summarizes one batch sync attempt.
type Result struct {
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	BatchHash string        `json:"batch_hash,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Driver orchestrates batch sync runs.
type Driver struct {
	queue     *queue.Queue
	breaker   *breaker.Breaker
	monitor   *validator.Monitor
	caps      *datacap.Manager
	submitter LedgerSubmitter
	cfg       Config
	tokens    BatchTokenGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithTokenGenerator overrides batch token generation for tests.
func WithTokenGenerator(gen BatchTokenGenerator) Option {
	return func(d *Driver) {
		d.tokens = gen
	}
}

// WithClock overrides the wall clock for deterministic durations.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// New creates a Driver wired to its four leaf components and the
// external ledger submitter.
func New(q *queue.Queue, b *breaker.Breaker, m *validator.Monitor, caps *datacap.Manager, sub LedgerSubmitter, cfg Config, opts ...Option) *Driver {
	d := &Driver{
		queue:     q,
		breaker:   b,
		monitor:   m,
		caps:      caps,
		submitter: sub,
		cfg:       cfg.withDefaults(),
		tokens:    UUIDv7Generator{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SyncOnce runs a single batch: re-queue eligible failures (when
// AutoRetry is on), pull pending records, and deliver them one at a
// time until the batch is exhausted, the breaker trips, or the context
// is cancelled. Cancellation is clean: records not yet marked synced or
// failed simply stay pending for the next run.
func (d *Driver) SyncOnce(ctx context.Context) (Result, error) {
	token := d.tokens.Generate()
	log := d.logger.With("batch", token)

	if d.cfg.AutoRetry {
		requeued, err := d.queue.RetryFailed(ctx, d.cfg.MaxAttempts)
		if err != nil {
			return Result{}, fmt.Errorf("sync batch: retry failed records: %w", err)
		}
		if requeued > 0 {
			log.Info("re-queued failed records", "count", requeued)
		}
	}

	records, err := d.queue.GetPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("sync batch: get pending: %w", err)
	}
	if len(records) == 0 {
		log.Debug("nothing pending")
		return Result{}, nil
	}

	if !d.breaker.CanExecute() {
		// Circuit open: don't claim anything, don't touch the network.
		log.Info("ledger circuit open, batch skipped", "pending", len(records))
		return Result{Skipped: len(records)}, nil
	}

	start := d.now()
	var result Result
	var attempted []string

	for i, rec := range records {
		if ctx.Err() != nil {
			log.Info("batch cancelled", "delivered", i, "remaining", len(records)-i)
			result.Skipped += len(records) - i
			break
		}
		if i > 0 && !d.breaker.CanExecute() {
			log.Info("ledger circuit opened mid-batch", "remaining", len(records)-i)
			result.Skipped += len(records) - i
			break
		}

		result.Attempted++
		attempted = append(attempted, rec.RecordHash)

		if d.deliver(ctx, log, rec) {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	result.Duration = d.now().Sub(start)
	result.BatchHash = fingerprint.Batch(attempted)

	if result.Attempted > 0 {
		// Detached from cancellation: the audit entry for work already
		// attempted must land even when shutdown arrived mid-batch.
		logCtx := context.WithoutCancel(ctx)
		if err := d.queue.LogSyncBatch(logCtx, result.Synced, result.Failed, result.BatchHash, result.Duration); err != nil {
			return result, fmt.Errorf("sync batch: log batch: %w", err)
		}
	}

	log.Info("batch complete",
		"attempted", result.Attempted,
		"synced", result.Synced,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return result, nil
}

// deliver submits one record and reports the outcome everywhere it
// matters. Returns true on confirmed sync.
func (d *Driver) deliver(ctx context.Context, log *slog.Logger, rec queue.Record) bool {
	endpointID, ok := d.monitor.GetHealthyEndpoint()
	if !ok {
		// No endpoints configured at all; construction prevents this,
		// but a failed submission still needs its bookkeeping.
		d.fail(ctx, log, rec, "", "no validator endpoint available")
		return false
	}
	endpointURL, ok := d.monitor.EndpointURL(endpointID)
	if !ok {
		d.fail(ctx, log, rec, endpointID, fmt.Sprintf("unknown endpoint %q", endpointID))
		return false
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	conf, err := d.submitter.Submit(attemptCtx, endpointURL, Submission{
		Fingerprint:    rec.RecordHash,
		RecordType:     rec.RecordType,
		Branch:         rec.Branch,
		Encrypted:      rec.Encrypted,
		PayloadJSON:    rec.PayloadJSON,
		IdempotencyKey: rec.IdempotencyKey,
	})
	if err != nil {
		// Timeouts count as failures for breaker and monitor alike.
		d.fail(ctx, log, rec, endpointID, err.Error())
		return false
	}

	d.breaker.RecordSuccess()
	d.monitor.ReportSuccess(endpointID, conf.Fee)

	// Bookkeeping writes run detached from cancellation: once the
	// ledger confirmed the submission, losing the MarkSynced to a
	// shutdown race would cause a duplicate resubmission next run.
	if err := d.queue.MarkSynced(context.WithoutCancel(ctx), rec.ID, conf.TxHash); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			// Stale ID (e.g. purged mid-batch). Not fatal to the batch.
			log.Warn("record vanished before mark synced", "id", rec.ID)
			return true
		}
		log.Error("mark synced failed", "id", rec.ID, "error", err)
		return true
	}
	d.caps.RecordDequeued(int64(len(rec.PayloadJSON)))

	log.Debug("record synced",
		"id", rec.ID,
		"endpoint", endpointID,
		"tx", conf.TxHash,
	)
	return true
}

// fail records one failed delivery attempt against all bookkeeping.
func (d *Driver) fail(ctx context.Context, log *slog.Logger, rec queue.Record, endpointID, reason string) {
	d.breaker.RecordFailure()
	if endpointID != "" {
		d.monitor.ReportFailure(endpointID)
	}
	if err := d.queue.MarkFailed(context.WithoutCancel(ctx), rec.ID, reason); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			log.Warn("record vanished before mark failed", "id", rec.ID)
			return
		}
		log.Error("mark failed failed", "id", rec.ID, "error", err)
		return
	}
	log.Debug("record failed",
		"id", rec.ID,
		"endpoint", endpointID,
		"attempts", rec.SyncAttempts+1,
		"error", reason,
	)
}

// Run executes SyncOnce on a fixed interval until the context is
// cancelled. Errors from individual batches are logged, not fatal:
// external-dependency flakiness degrades to "nothing is syncing right
// now" while the queue keeps accepting work.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("sync driver starting", "interval", d.cfg.Interval)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("batch sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("sync driver stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
