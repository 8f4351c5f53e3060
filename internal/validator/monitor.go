// Package validator tracks the health of the ledger validator endpoints
// for one logical network and picks the best candidate for the next
// submission.
//
// Unlike a circuit breaker, which guards a dependency as a whole, the
// monitor operates per endpoint within a redundant pool: one
// misbehaving node fails over to its siblings without taking the
// network offline, and an isolated node is retried after a decaying
// backoff rather than blacklisted permanently.
package validator

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Backoff discipline for unhealthy endpoints.
const (
	// MaxConsecutiveFailures is the consecutive-failure count at which
	// an endpoint is marked unhealthy and put into backoff. Below it,
	// failures are recorded but the endpoint stays eligible - isolated
	// blips do not trigger failover.
	MaxConsecutiveFailures = 3

	// BaseBackoff is the first backoff window after crossing the
	// failure threshold. Each further failure doubles it.
	BaseBackoff = 5 * time.Second

	// MaxBackoff caps the exponential growth.
	MaxBackoff = 300 * time.Second
)

// Endpoint is the static configuration of one validator node.
type Endpoint struct {
	ID       string `yaml:"id"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
}

// state is the mutable health bookkeeping for one endpoint. Created at
// monitor initialization, mutated only through success/failure reports,
// never destroyed while the process runs.
type state struct {
	Endpoint

	healthy             bool
	consecutiveFailures int
	lastSuccess         time.Time
	lastFailure         time.Time
	lastCheck           time.Time
	lastFee             int64
	totalRequests       int64
	totalFailures       int64
	backoffUntil        time.Time
}

// Monitor selects among the configured endpoints of one network.
//
// All state is in-memory and resets to healthy defaults on restart; it
// rebuilds quickly from live traffic.
type Monitor struct {
	network string
	now     func() time.Time

	mu        sync.Mutex
	endpoints map[string]*state
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the wall clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a Monitor for the named network. Every endpoint starts
// healthy.
func New(network string, endpoints []Endpoint, opts ...Option) (*Monitor, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("network %q has no endpoints configured", network)
	}

	m := &Monitor{
		network:   network,
		now:       time.Now,
		endpoints: make(map[string]*state, len(endpoints)),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, ep := range endpoints {
		if _, dup := m.endpoints[ep.ID]; dup {
			return nil, fmt.Errorf("network %q: duplicate endpoint id %q", network, ep.ID)
		}
		m.endpoints[ep.ID] = &state{Endpoint: ep, healthy: true}
	}
	return m, nil
}

// Network returns the logical network name.
func (m *Monitor) Network() string {
	return m.network
}

// GetHealthyEndpoint returns the ID of the best endpoint to use now.
//
// Selection: among endpoints that are healthy or whose backoff has
// elapsed, healthy endpoints win over recovering ones, then lower
// priority number wins. If every endpoint is still in backoff, the one
// whose backoff expires soonest is returned as a last resort - callers
// always get a best-effort answer.
func (m *Monitor) GetHealthyEndpoint() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var candidates []*state
	for _, s := range m.endpoints {
		if s.healthy || !now.Before(s.backoffUntil) {
			candidates = append(candidates, s)
		}
	}

	if len(candidates) == 0 {
		// All in backoff: pick the one closest to recovery.
		var soonest *state
		for _, s := range m.endpoints {
			if soonest == nil || s.backoffUntil.Before(soonest.backoffUntil) {
				soonest = s
			}
		}
		if soonest == nil {
			return "", false
		}
		return soonest.ID, true
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].healthy != candidates[j].healthy {
			return candidates[i].healthy
		}
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, true
}

// EndpointURL returns the configured URL for an endpoint ID.
func (m *Monitor) EndpointURL(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.endpoints[id]
	if !ok {
		return "", false
	}
	return s.URL, true
}

// ReportSuccess records a successful interaction. Unconditionally marks
// the endpoint healthy, zeroes the consecutive-failure count, clears
// any backoff, and stores the observed fee hint.
func (m *Monitor) ReportSuccess(id string, fee int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.endpoints[id]
	if !ok {
		return
	}
	now := m.now()
	s.healthy = true
	s.consecutiveFailures = 0
	s.lastSuccess = now
	s.lastCheck = now
	s.lastFee = fee
	s.totalRequests++
	s.backoffUntil = time.Time{}
}

// ReportFailure records a failed interaction. At the threshold the
// endpoint is marked unhealthy and an exponential backoff window opens:
// 5s, 10s, 20s, ... capped at 300s.
func (m *Monitor) ReportFailure(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.endpoints[id]
	if !ok {
		return
	}
	now := m.now()
	s.consecutiveFailures++
	s.totalFailures++
	s.totalRequests++
	s.lastFailure = now
	s.lastCheck = now

	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
		s.backoffUntil = now.Add(backoffFor(s.consecutiveFailures))
	}
}

// backoffFor computes min(BaseBackoff * 2^(failures - threshold),
// MaxBackoff). The shift is capped before doubling so a months-long
// outage cannot overflow the duration.
func backoffFor(failures int) time.Duration {
	exp := failures - MaxConsecutiveFailures
	if exp < 0 {
		exp = 0
	}
	backoff := BaseBackoff
	for i := 0; i < exp; i++ {
		backoff *= 2
		if backoff >= MaxBackoff {
			return MaxBackoff
		}
	}
	if backoff > MaxBackoff {
		return MaxBackoff
	}
	return backoff
}

// EndpointStatus is an observability snapshot of one endpoint.
type EndpointStatus struct {
	ID                  string  `json:"id"`
	URL                 string  `json:"url"`
	Priority            int     `json:"priority"`
	Healthy             bool    `json:"healthy"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	LastSuccessAgo      float64 `json:"last_success_ago,omitempty"`
	LastFailureAgo      float64 `json:"last_failure_ago,omitempty"`
	LastFee             int64   `json:"last_fee"`
	TotalRequests       int64   `json:"total_requests"`
	TotalFailures       int64   `json:"total_failures"`
	BackoffRemaining    float64 `json:"backoff_remaining"`
}

// Status is the full monitor snapshot.
type Status struct {
	Network        string           `json:"network"`
	ActiveEndpoint string           `json:"active_endpoint,omitempty"`
	Endpoints      []EndpointStatus `json:"endpoints"`
}

// GetStatus returns a snapshot of every endpoint, sorted by priority
// then ID, plus the endpoint selection would currently return.
func (m *Monitor) GetStatus() Status {
	active, _ := m.GetHealthyEndpoint()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	statuses := make([]EndpointStatus, 0, len(m.endpoints))
	for _, s := range m.endpoints {
		es := EndpointStatus{
			ID:                  s.ID,
			URL:                 s.URL,
			Priority:            s.Priority,
			Healthy:             s.healthy,
			ConsecutiveFailures: s.consecutiveFailures,
			LastFee:             s.lastFee,
			TotalRequests:       s.totalRequests,
			TotalFailures:       s.totalFailures,
		}
		if !s.lastSuccess.IsZero() {
			es.LastSuccessAgo = now.Sub(s.lastSuccess).Seconds()
		}
		if !s.lastFailure.IsZero() {
			es.LastFailureAgo = now.Sub(s.lastFailure).Seconds()
		}
		if remaining := s.backoffUntil.Sub(now); remaining > 0 {
			es.BackoffRemaining = remaining.Seconds()
		}
		statuses = append(statuses, es)
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Priority != statuses[j].Priority {
			return statuses[i].Priority < statuses[j].Priority
		}
		return statuses[i].ID < statuses[j].ID
	})

	return Status{
		Network:        m.network,
		ActiveEndpoint: active,
		Endpoints:      statuses,
	}
}
