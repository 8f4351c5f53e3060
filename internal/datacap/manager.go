// Package datacap bounds local queue growth during prolonged outages.
//
// The manager is advisory bookkeeping, not enforcement: the ingestion
// path consults CanEnqueue before writing to the queue, and a refusal
// is an admission-control signal to surface to an operator, not an
// error. Counters are derived state - they are rebuilt from the queue's
// own counts on restart via Reset, never persisted independently.
package datacap

import (
	"fmt"
	"sync"
)

// Defaults sized for multi-day air-gapped operation.
const (
	DefaultMaxQueueSize = 10000
	DefaultMaxStorageMB = 500
)

// Manager tracks current queue count and payload footprint against
// configured ceilings.
type Manager struct {
	maxQueueSize int64
	maxBytes     int64

	mu           sync.Mutex
	currentCount int64
	currentBytes int64
}

// Config holds the cap ceilings. Zero values take the package defaults.
type Config struct {
	MaxQueueSize int
	MaxStorageMB int
}

// New creates a Manager with the given ceilings.
func New(cfg Config) *Manager {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.MaxStorageMB <= 0 {
		cfg.MaxStorageMB = DefaultMaxStorageMB
	}
	return &Manager{
		maxQueueSize: int64(cfg.MaxQueueSize),
		maxBytes:     int64(cfg.MaxStorageMB) * 1024 * 1024,
	}
}

// CanEnqueue reports whether a record with the given payload size fits
// within the caps. On refusal the reason is a human-readable message
// for the operator.
func (m *Manager) CanEnqueue(payloadSizeBytes int64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentCount >= m.maxQueueSize {
		return false, fmt.Sprintf("queue full: %d/%d records", m.currentCount, m.maxQueueSize)
	}
	if newSize := m.currentBytes + payloadSizeBytes; newSize > m.maxBytes {
		return false, fmt.Sprintf("storage cap exceeded: %.1fMB / %dMB",
			float64(newSize)/1024/1024, m.maxBytes/1024/1024)
	}
	return true, "OK"
}

// RecordEnqueued accounts for one accepted record.
func (m *Manager) RecordEnqueued(payloadSizeBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentCount++
	m.currentBytes += payloadSizeBytes
}

// RecordDequeued accounts for one record leaving the live queue.
// Counters floor at zero to tolerate accounting drift.
func (m *Manager) RecordDequeued(payloadSizeBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentCount--
	if m.currentCount < 0 {
		m.currentCount = 0
	}
	m.currentBytes -= payloadSizeBytes
	if m.currentBytes < 0 {
		m.currentBytes = 0
	}
}

// Reset overwrites the counters from authoritative queue counts.
// Called on startup after the queue reports its live footprint.
func (m *Manager) Reset(count, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count < 0 {
		count = 0
	}
	if bytes < 0 {
		bytes = 0
	}
	m.currentCount = count
	m.currentBytes = bytes
}

// Usage is a snapshot of cap consumption.
type Usage struct {
	Count      int64   `json:"count"`
	CountLimit int64   `json:"count_limit"`
	CountPct   float64 `json:"count_pct"`
	Bytes      int64   `json:"bytes"`
	ByteLimit  int64   `json:"byte_limit"`
	BytePct    float64 `json:"byte_pct"`
}

// GetUsage returns current counters, limits, and percentages.
func (m *Manager) GetUsage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Usage{
		Count:      m.currentCount,
		CountLimit: m.maxQueueSize,
		CountPct:   pct(m.currentCount, m.maxQueueSize),
		Bytes:      m.currentBytes,
		ByteLimit:  m.maxBytes,
		BytePct:    pct(m.currentBytes, m.maxBytes),
	}
}

func pct(current, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(current) / float64(limit) * 100
}
