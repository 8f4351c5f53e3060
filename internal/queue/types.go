package queue

import "time"

// Status is the lifecycle state of a queue record.
type Status string

const (
	// StatusPending means the record awaits ledger submission.
	StatusPending Status = "pending"
	// StatusSynced means the record was confirmed by the ledger. Terminal.
	StatusSynced Status = "synced"
	// StatusFailed means the last submission attempt failed. Returns to
	// pending via RetryFailed while attempts remain below the ceiling.
	StatusFailed Status = "failed"
)

// DefaultBranch is the logical partition assigned when the caller
// supplies none.
const DefaultBranch = "JOINT"

// maxErrorLen caps the stored error message per record.
const maxErrorLen = 500

// Record is one unit of pending anchor work.
//
// Identity is the auto-incrementing ID assigned at enqueue time; IDs are
// strictly increasing and never reused. IdempotencyKey is a UUIDv7
// assigned at enqueue and persisted, so crash-window resubmissions carry
// the same key to the downstream ledger client.
type Record struct {
	ID             int64  `json:"id"`
	RecordHash     string `json:"record_hash"`
	RecordType     string `json:"record_type"`
	PayloadJSON    string `json:"payload_json,omitempty"`
	Encrypted      bool   `json:"encrypted"`
	Branch         string `json:"branch"`
	IdempotencyKey string `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
	Status         Status    `json:"status"`
	SyncAttempts   int       `json:"sync_attempts"`
	LastAttempt    *time.Time `json:"last_attempt,omitempty"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
	TxHash         string     `json:"tx_hash,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// BatchSummary is one append-only sync_log entry.
type BatchSummary struct {
	Timestamp       time.Time `json:"timestamp"`
	RecordsSynced   int       `json:"records_synced"`
	RecordsFailed   int       `json:"records_failed"`
	BatchHash       string    `json:"batch_hash,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Stats is the read-only aggregate returned by Stats().
type Stats struct {
	Pending   int           `json:"pending"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	LastSync  *time.Time    `json:"last_sync,omitempty"`
	LastBatch *BatchSummary `json:"last_batch,omitempty"`
}
