// Package breaker implements the circuit breaker pattern for external
// dependencies of the submission subsystem (ledger network, inventory
// database, directory service).
//
// One Breaker guards one named dependency as a whole. Endpoint-level
// failover within the ledger validator pool is handled separately by
// the validator package.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	// StateClosed is normal operation. Failures are counted; reaching
	// the threshold opens the circuit.
	StateClosed State = "closed"
	// StateOpen rejects all calls until the recovery timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen allows trial calls. Enough successes close the
	// circuit; a single failure reopens it.
	StateHalfOpen State = "half_open"
)

// Defaults match the production configuration of the original service
// integrations.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
	DefaultSuccessThreshold = 2
)

// Breaker is a per-dependency failure-isolation state machine.
//
// State transitions happen only through RecordSuccess, RecordFailure,
// and the passage of time observed by CanExecute. No external caller
// can force a transition.
//
// Thread-safety: all methods lock. The open → half_open transition in
// CanExecute must be atomic with the check, so that exactly one of
// several racing callers performs it and the half-open success counter
// starts clean for genuinely one trial.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int
	now              func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailure     time.Time
	lastStateChange time.Time
}

// Config holds the thresholds for one breaker. Zero values take the
// package defaults.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the wall clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// New creates a closed Breaker guarding the named dependency.
func New(name string, cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}

	b := &Breaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		successThreshold: cfg.SuccessThreshold,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastStateChange = b.now()
	return b
}

// Name returns the guarded dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// CanExecute reports whether a call to the dependency may proceed.
//
// Side-effecting: when the circuit is open and the recovery timeout has
// elapsed since the last failure, CanExecute itself transitions to
// half_open and returns true for that one caller (the test probe).
// Concurrent callers observe exactly one transition.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.transition(StateHalfOpen)
			b.successCount = 0
			return true
		}
		return false
	case StateHalfOpen:
		return true
	}
	return false
}

// RecordSuccess reports one successful call outcome.
//
// In half_open, counts toward the success threshold; reaching it closes
// the circuit and resets all counters. In closed, resets the failure
// counter to zero (binary reset, no decay).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure reports one failed call outcome.
//
// In closed, reaching the failure threshold opens the circuit. In
// half_open, a single failure reopens the circuit immediately and
// resets the recovery clock.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.failureCount >= b.failureThreshold {
			b.transition(StateOpen)
		}
	}
}

// transition moves to the target state and stamps the change time.
// Callers must hold b.mu.
func (b *Breaker) transition(to State) {
	b.state = to
	b.lastStateChange = b.now()
}

// Status is an observability snapshot of one breaker.
type Status struct {
	Name            string  `json:"name"`
	State           State   `json:"state"`
	FailureCount    int     `json:"failure_count"`
	SuccessCount    int     `json:"success_count"`
	RecoveryTimeout float64 `json:"recovery_timeout_seconds"`
	TimeInState     float64 `json:"time_in_state_seconds"`
}

// GetStatus returns the current snapshot. Read-only: does not trigger
// the open → half_open transition even if the timeout has elapsed.
func (b *Breaker) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Name:            b.name,
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		RecoveryTimeout: b.recoveryTimeout.Seconds(),
		TimeInState:     b.now().Sub(b.lastStateChange).Seconds(),
	}
}
