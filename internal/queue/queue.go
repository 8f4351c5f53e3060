package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an operation targets a queue ID that does
// not exist. Callers treat it as non-fatal (log and continue).
var ErrNotFound = errors.New("queue record not found")

// timeFormat is the stored timestamp layout. Fixed-width UTC RFC 3339 so
// lexicographic comparison in SQL matches chronological order.
const timeFormat = time.RFC3339

func (q *Queue) timestamp() string {
	return q.now().UTC().Format(timeFormat)
}

// Enqueue adds a record in pending state and returns its queue ID.
//
// The durable write commits before Enqueue returns. IDs are assigned by
// SQLite AUTOINCREMENT: strictly increasing, never reused, unique across
// the life of the database.
//
// Capacity is NOT checked here - callers consult datacap.Manager.CanEnqueue
// first. Storage accepts whatever is handed to it.
func (q *Queue) Enqueue(ctx context.Context, recordHash, recordType string, payload []byte, encrypted bool, branch string) (int64, error) {
	if recordHash == "" {
		return 0, fmt.Errorf("enqueue: record hash is required")
	}
	if recordType == "" {
		return 0, fmt.Errorf("enqueue: record type is required")
	}
	if branch == "" {
		branch = DefaultBranch
	}

	var payloadJSON sql.NullString
	if len(payload) > 0 {
		payloadJSON = sql.NullString{String: string(payload), Valid: true}
	}

	key := uuid.Must(uuid.NewV7()).String()

	result, err := q.db.ExecContext(ctx, `
		INSERT INTO queue
		(record_hash, record_type, payload_json, encrypted, branch, idempotency_key, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		recordHash,
		recordType,
		payloadJSON,
		boolToInt(encrypted),
		branch,
		key,
		q.timestamp(),
		string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue: last insert id: %w", err)
	}
	return id, nil
}

// GetPending returns up to limit pending records, oldest first. The ID
// tie-break keeps ordering deterministic for records created within the
// same second.
func (q *Queue) GetPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, record_hash, record_type, payload_json, encrypted, branch,
		       idempotency_key, created_at, status, sync_attempts,
		       last_attempt, synced_at, tx_hash, error
		FROM queue
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("get pending: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}
	return records, nil
}

// Get returns a single record by queue ID.
func (q *Queue) Get(ctx context.Context, id int64) (Record, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, record_hash, record_type, payload_json, encrypted, branch,
		       idempotency_key, created_at, status, sync_attempts,
		       last_attempt, synced_at, tx_hash, error
		FROM queue WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// MarkSynced transitions a record to synced, stamping the sync time and
// the ledger confirmation token.
//
// Synced is terminal: the SQL guard only matches non-synced rows, so
// marking an already-synced record again is a no-op, not an error.
// Returns ErrNotFound if the ID does not exist.
func (q *Queue) MarkSynced(ctx context.Context, id int64, txHash string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE queue SET status = ?, synced_at = ?, tx_hash = ?
		WHERE id = ? AND status != ?
	`, string(StatusSynced), q.timestamp(), txHash, id, string(StatusSynced))
	if err != nil {
		return fmt.Errorf("mark synced %d: %w", id, err)
	}
	return q.checkTransition(ctx, result, id)
}

// MarkFailed transitions a record to failed, increments its attempt
// count, and stores a truncated error message.
//
// A record already in the terminal synced state is left untouched.
// Returns ErrNotFound if the ID does not exist.
func (q *Queue) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	result, err := q.db.ExecContext(ctx, `
		UPDATE queue SET status = ?, last_attempt = ?,
		       sync_attempts = sync_attempts + 1, error = ?
		WHERE id = ? AND status != ?
	`, string(StatusFailed), q.timestamp(), errMsg, id, string(StatusSynced))
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	return q.checkTransition(ctx, result, id)
}

// checkTransition distinguishes "row absent" from "row already terminal"
// after a guarded UPDATE matched nothing.
func (q *Queue) checkTransition(ctx context.Context, result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue WHERE id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("check record %d: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	// Row exists but is already synced. Terminal state wins; no-op.
	return nil
}

// RetryFailed bulk-transitions failed records with attempts below
// maxAttempts back to pending. Returns the number of records re-queued.
func (q *Queue) RetryFailed(ctx context.Context, maxAttempts int) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE queue SET status = ?
		WHERE status = ? AND sync_attempts < ?
	`, string(StatusPending), string(StatusFailed), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed: rows affected: %w", err)
	}
	return affected, nil
}

// Stats returns queue counts by status plus the most recent sync time
// and batch summary.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, pair := range []struct {
		status Status
		dest   *int
	}{
		{StatusPending, &stats.Pending},
		{StatusSynced, &stats.Synced},
		{StatusFailed, &stats.Failed},
	} {
		err := q.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM queue WHERE status = ?`, string(pair.status),
		).Scan(pair.dest)
		if err != nil {
			return Stats{}, fmt.Errorf("stats: count %s: %w", pair.status, err)
		}
	}
	stats.Total = stats.Pending + stats.Synced + stats.Failed

	var lastSync sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT MAX(synced_at) FROM queue WHERE status = ?`, string(StatusSynced),
	).Scan(&lastSync)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: last sync: %w", err)
	}
	if lastSync.Valid {
		t, err := time.Parse(timeFormat, lastSync.String)
		if err != nil {
			return Stats{}, fmt.Errorf("stats: parse last sync: %w", err)
		}
		stats.LastSync = &t
	}

	var (
		ts        string
		batchHash sql.NullString
		duration  sql.NullFloat64
		summary   BatchSummary
	)
	err = q.db.QueryRowContext(ctx, `
		SELECT timestamp, records_synced, records_failed, batch_hash, duration_seconds
		FROM sync_log ORDER BY id DESC LIMIT 1
	`).Scan(&ts, &summary.RecordsSynced, &summary.RecordsFailed, &batchHash, &duration)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No batches logged yet.
	case err != nil:
		return Stats{}, fmt.Errorf("stats: last batch: %w", err)
	default:
		t, err := time.Parse(timeFormat, ts)
		if err != nil {
			return Stats{}, fmt.Errorf("stats: parse batch timestamp: %w", err)
		}
		summary.Timestamp = t
		summary.BatchHash = batchHash.String
		summary.DurationSeconds = duration.Float64
		stats.LastBatch = &summary
	}

	return stats, nil
}

// LogSyncBatch appends one immutable audit entry for a completed batch
// sync attempt.
func (q *Queue) LogSyncBatch(ctx context.Context, synced, failed int, batchHash string, duration time.Duration) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_log (timestamp, records_synced, records_failed, batch_hash, duration_seconds)
		VALUES (?, ?, ?, ?, ?)
	`, q.timestamp(), synced, failed, batchHash, duration.Seconds())
	if err != nil {
		return fmt.Errorf("log sync batch: %w", err)
	}
	return nil
}

// PurgeSynced deletes synced records older than the cutoff. The only
// destructive operation on the queue, and it only ever touches terminal,
// ledger-confirmed records.
func (q *Queue) PurgeSynced(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := q.now().UTC().AddDate(0, 0, -olderThanDays).Format(timeFormat)
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM queue WHERE status = ? AND synced_at < ?
	`, string(StatusSynced), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge synced: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge synced: rows affected: %w", err)
	}
	return affected, nil
}

// CountAndBytes reports the number of live (non-synced) records and
// their cumulative payload footprint. The data cap manager rebuilds its
// counters from this on restart; cap usage is derived state, never
// independently persisted.
func (q *Queue) CountAndBytes(ctx context.Context) (count int64, bytes int64, err error) {
	err = q.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(COALESCE(payload_json, ''))), 0)
		FROM queue WHERE status != ?
	`, string(StatusSynced)).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("count and bytes: %w", err)
	}
	return count, bytes, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec         Record
		payloadJSON sql.NullString
		encrypted   int
		createdAt   string
		status      string
		lastAttempt sql.NullString
		syncedAt    sql.NullString
		txHash      sql.NullString
		errMsg      sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.RecordHash, &rec.RecordType, &payloadJSON, &encrypted,
		&rec.Branch, &rec.IdempotencyKey, &createdAt, &status,
		&rec.SyncAttempts, &lastAttempt, &syncedAt, &txHash, &errMsg,
	)
	if err != nil {
		return Record{}, err
	}

	rec.PayloadJSON = payloadJSON.String
	rec.Encrypted = encrypted != 0
	rec.Status = Status(status)
	rec.TxHash = txHash.String
	rec.Error = errMsg.String

	created, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = created

	for _, pair := range []struct {
		src  sql.NullString
		dest **time.Time
	}{
		{lastAttempt, &rec.LastAttempt},
		{syncedAt, &rec.SyncedAt},
	} {
		if !pair.src.Valid {
			continue
		}
		t, err := time.Parse(timeFormat, pair.src.String)
		if err != nil {
			return Record{}, fmt.Errorf("parse timestamp: %w", err)
		}
		*pair.dest = &t
	}

	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
