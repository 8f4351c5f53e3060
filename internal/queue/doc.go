// Package queue provides SQLite-backed durable storage for pending
// anchor operations.
//
// The queue is the single source of truth for the submission subsystem:
//   - Records: one row per content fingerprint awaiting ledger anchoring
//   - Sync Log: append-only audit entries, one per batch sync attempt
//
// # Lifecycle
//
// Records move pending → synced (terminal) or pending → failed → pending
// (via RetryFailed, while attempts remain below the ceiling). A synced
// record never mutates again: the terminal transition is guarded in SQL,
// so a late MarkFailed against an already-synced record is a no-op.
//
// # Crash tolerance
//
// Every mutation commits before the call returns. A crash between ledger
// submission and MarkSynced leaves the record pending; it is resubmitted
// on the next batch. Downstream submission is assumed idempotent: each
// record carries a persisted idempotency key (UUIDv7, assigned at
// enqueue) the ledger client can use for duplicate detection.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - MaxOpenConns(1): single writer, avoids SQLITE_BUSY
package queue
