package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s4ledger/anchorsync/internal/breaker"
	"github.com/s4ledger/anchorsync/internal/datacap"
	"github.com/s4ledger/anchorsync/internal/queue"
	"github.com/s4ledger/anchorsync/internal/validator"
)

// fakeSubmitter scripts ledger outcomes per endpoint URL and records
// every call.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []string // endpoint URLs in call order
	failFor map[string]error
	onCall  func(n int)
	txSeq   int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{failFor: make(map[string]error)}
}

func (f *fakeSubmitter) Submit(ctx context.Context, endpointURL string, sub Submission) (Confirmation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpointURL)
	n := len(f.calls)
	hook := f.onCall
	err := f.failFor[endpointURL]
	f.txSeq++
	tx := f.txSeq
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return Confirmation{}, err
	}
	if ctx.Err() != nil {
		return Confirmation{}, ctx.Err()
	}
	return Confirmation{TxHash: txHash(tx), Fee: 12}, nil
}

func txHash(n int) string {
	return "TX-" + string(rune('A'+n-1))
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	queue   *queue.Queue
	breaker *breaker.Breaker
	monitor *validator.Monitor
	caps    *datacap.Manager
	sub     *fakeSubmitter
	driver  *Driver
}

func newFixture(t *testing.T, cfg Config, breakerCfg breaker.Config) *fixture {
	t.Helper()

	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	m, err := validator.New("testnet", []validator.Endpoint{
		{ID: "primary", URL: "https://primary.example.net", Priority: 1},
		{ID: "fallback", URL: "https://fallback.example.net", Priority: 2},
	})
	require.NoError(t, err)

	f := &fixture{
		queue:   q,
		breaker: breaker.New("ledger", breakerCfg),
		monitor: m,
		caps:    datacap.New(datacap.Config{}),
		sub:     newFakeSubmitter(),
	}
	f.driver = New(f.queue, f.breaker, f.monitor, f.caps, f.sub, cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTokenGenerator(FixedGenerator{Token: "batch-0001"}),
	)
	return f
}

func (f *fixture) enqueue(t *testing.T, hashes ...string) []int64 {
	t.Helper()
	var ids []int64
	for _, h := range hashes {
		id, err := f.queue.Enqueue(context.Background(), h, "maintenance", []byte(`{"p":1}`), false, "")
		require.NoError(t, err)
		f.caps.RecordEnqueued(int64(len(`{"p":1}`)))
		ids = append(ids, id)
	}
	return ids
}

func TestSyncOnce_DeliversAllPending(t *testing.T) {
	f := newFixture(t, Config{}, breaker.Config{})
	ctx := context.Background()

	f.enqueue(t, "hash-1", "hash-2", "hash-3")

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Pending)

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Synced)
	assert.Zero(t, result.Failed)
	assert.NotEmpty(t, result.BatchHash)

	stats, err = f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 3, stats.Synced)
	assert.Equal(t, 0, stats.Failed)
	require.NotNil(t, stats.LastBatch, "batch was logged")
	assert.Equal(t, 3, stats.LastBatch.RecordsSynced)
	assert.Equal(t, result.BatchHash, stats.LastBatch.BatchHash)

	// Cap accounting released the delivered payloads.
	assert.Zero(t, f.caps.GetUsage().Count)
}

func TestSyncOnce_EmptyQueueIsQuiet(t *testing.T) {
	f := newFixture(t, Config{}, breaker.Config{})

	result, err := f.driver.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Zero(t, f.sub.callCount())

	stats, err := f.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stats.LastBatch, "empty runs are not logged")
}

func TestSyncOnce_RecordExhaustsAttempts(t *testing.T) {
	// Breaker threshold above the attempt ceiling so the circuit never
	// interferes with this scenario.
	f := newFixture(t,
		Config{MaxAttempts: 5, AutoRetry: true},
		breaker.Config{FailureThreshold: 100},
	)
	ctx := context.Background()

	ids := f.enqueue(t, "hash-doomed")
	f.sub.failFor["https://primary.example.net"] = errors.New("connection refused")
	f.sub.failFor["https://fallback.example.net"] = errors.New("connection refused")

	for i := 0; i < 5; i++ {
		result, err := f.driver.SyncOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed, "run %d", i+1)
	}

	rec, err := f.queue.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, rec.Status)
	assert.Equal(t, 5, rec.SyncAttempts)
	assert.Contains(t, rec.Error, "connection refused")

	// At the ceiling: nothing left to re-queue, terminal until an
	// operator intervenes.
	requeued, err := f.queue.RetryFailed(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, requeued)

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
}

func TestSyncOnce_BreakerOpenSkipsBatch(t *testing.T) {
	f := newFixture(t, Config{}, breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	ctx := context.Background()

	f.breaker.RecordFailure() // trips immediately
	ids := f.enqueue(t, "hash-1", "hash-2")

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Attempted)
	assert.Zero(t, f.sub.callCount(), "open circuit never touches the network")

	// Nothing was claimed: records still pending with zero attempts.
	for _, id := range ids {
		rec, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, rec.Status)
		assert.Zero(t, rec.SyncAttempts)
	}
}

func TestSyncOnce_BreakerTripsMidBatch(t *testing.T) {
	f := newFixture(t, Config{}, breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	ctx := context.Background()

	f.enqueue(t, "hash-1", "hash-2", "hash-3", "hash-4")
	f.sub.failFor["https://primary.example.net"] = errors.New("rate limited")
	f.sub.failFor["https://fallback.example.net"] = errors.New("rate limited")

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempted, "circuit opened after two failures")
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, breaker.StateOpen, f.breaker.GetStatus().State)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending, "skipped records untouched")
	assert.Equal(t, 2, stats.Failed)
}

func TestSyncOnce_TimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(t, Config{AttemptTimeout: 20 * time.Millisecond}, breaker.Config{})
	ctx := context.Background()

	ids := f.enqueue(t, "hash-slow")

	slow := SubmitterFunc(func(ctx context.Context, endpointURL string, sub Submission) (Confirmation, error) {
		<-ctx.Done() // hung network call
		return Confirmation{}, ctx.Err()
	})
	f.driver.submitter = slow

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	rec, err := f.queue.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "deadline exceeded")

	assert.Equal(t, 1, f.breaker.GetStatus().FailureCount)
	primary := f.monitor.GetStatus().Endpoints[0]
	assert.EqualValues(t, 1, primary.TotalFailures)
}

func TestSyncOnce_FailoverMidBatch(t *testing.T) {
	f := newFixture(t, Config{}, breaker.Config{FailureThreshold: 100})
	ctx := context.Background()

	f.enqueue(t, "h1", "h2", "h3", "h4", "h5")
	f.sub.failFor["https://primary.example.net"] = errors.New("node down")

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)

	// First three deliveries hit the primary and fail, marking it
	// unhealthy; the rest fail over to the fallback and succeed.
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, []string{
		"https://primary.example.net",
		"https://primary.example.net",
		"https://primary.example.net",
		"https://fallback.example.net",
		"https://fallback.example.net",
	}, f.sub.calls)
}

func TestSyncOnce_CancelledMidBatchLeavesPending(t *testing.T) {
	f := newFixture(t, Config{}, breaker.Config{})
	ctx, cancel := context.WithCancel(context.Background())

	f.enqueue(t, "h1", "h2", "h3")
	f.sub.onCall = func(n int) {
		if n == 1 {
			cancel() // shutdown arrives during the first delivery
		}
	}

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 2, result.Skipped)

	stats, err := f.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending, "unclaimed records stay pending for the next run")
}

func TestSyncOnce_AutoRetryRequeuesBeforeBatch(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 5, AutoRetry: true}, breaker.Config{FailureThreshold: 100})
	ctx := context.Background()

	ids := f.enqueue(t, "hash-retry")
	require.NoError(t, f.queue.MarkFailed(ctx, ids[0], "previous outage"))

	result, err := f.driver.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	rec, err := f.queue.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSynced, rec.Status)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, Config{Interval: 10 * time.Millisecond}, breaker.Config{})
	f.enqueue(t, "hash-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.driver.Run(ctx)
	}()

	// Let at least one batch complete, then shut down.
	require.Eventually(t, func() bool {
		return f.sub.callCount() >= 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	stats, err := f.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)
}
