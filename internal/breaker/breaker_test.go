package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock for deterministic breaker tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *testClock) *Breaker {
	return New("ledger", Config{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}, WithClock(clock.Now))
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := newTestBreaker(newTestClock())
	assert.Equal(t, StateClosed, b.GetStatus().State)
	assert.True(t, b.CanExecute())
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := newTestBreaker(newTestClock())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.GetStatus().State, "below threshold stays closed")

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetStatus().State, "threshold reached opens circuit")
	assert.False(t, b.CanExecute())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(newTestClock())

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Zero(t, b.GetStatus().FailureCount, "binary reset on success")

	// Two more failures do not reach the threshold from zero.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.GetStatus().State)
}

func TestBreaker_RecoveryTimeoutAllowsProbe(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.GetStatus().State)

	clock.Advance(29 * time.Second)
	assert.False(t, b.CanExecute(), "still inside recovery timeout")

	clock.Advance(time.Second)
	assert.True(t, b.CanExecute(), "timeout elapsed - probe allowed")
	assert.Equal(t, StateHalfOpen, b.GetStatus().State)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(30 * time.Second)
	require.True(t, b.CanExecute())
	require.Equal(t, StateHalfOpen, b.GetStatus().State)

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetStatus().State, "single half-open failure reopens")

	// Failure clock was reset: the probe window starts over.
	clock.Advance(29 * time.Second)
	assert.False(t, b.CanExecute())
	clock.Advance(time.Second)
	assert.True(t, b.CanExecute())
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(30 * time.Second)
	require.True(t, b.CanExecute())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.GetStatus().State, "one success is not enough")

	b.RecordSuccess()
	status := b.GetStatus()
	assert.Equal(t, StateClosed, status.State)
	assert.Zero(t, status.FailureCount)
	assert.Zero(t, status.SuccessCount)
}

func TestBreaker_SingleProbeUnderConcurrentCheck(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(30 * time.Second)

	// Many goroutines race CanExecute after the timeout. Exactly one
	// logical transition must occur: everyone sees half_open, and the
	// success counter starts clean.
	const callers = 16
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- b.CanExecute()
		}()
	}
	wg.Wait()
	close(results)

	for allowed := range results {
		assert.True(t, allowed, "half_open allows trial calls")
	}

	status := b.GetStatus()
	assert.Equal(t, StateHalfOpen, status.State)
	assert.Zero(t, status.SuccessCount, "counter must not be reset repeatedly mid-trial")
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := New("inventory-db", Config{})
	status := b.GetStatus()
	assert.Equal(t, "inventory-db", status.Name)
	assert.InDelta(t, DefaultRecoveryTimeout.Seconds(), status.RecoveryTimeout, 0.001)
}

func TestBreaker_TimeInState(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)

	clock.Advance(90 * time.Second)
	assert.InDelta(t, 90.0, b.GetStatus().TimeInState, 0.001)
}

func TestRegistry_GetAndStatuses(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"ledger":            {FailureThreshold: 3, RecoveryTimeout: 30 * time.Second},
		"inventory-db":      {FailureThreshold: 5, RecoveryTimeout: 60 * time.Second},
		"directory-service": {FailureThreshold: 3, RecoveryTimeout: 120 * time.Second},
	})

	require.NotNil(t, r.Get("ledger"))
	assert.Nil(t, r.Get("unknown"))

	statuses := r.Statuses()
	require.Len(t, statuses, 3)
	// Sorted by name for stable output.
	assert.Equal(t, "directory-service", statuses[0].Name)
	assert.Equal(t, "inventory-db", statuses[1].Name)
	assert.Equal(t, "ledger", statuses[2].Name)
}
