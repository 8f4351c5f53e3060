package syncer

import "context"

// Submission carries one queue record to the ledger client. The
// idempotency key is persisted with the record at enqueue time, so a
// crash-window resubmission presents the same key and a
// duplicate-tolerant ledger client can deduplicate.
type Submission struct {
	Fingerprint    string
	RecordType     string
	Branch         string
	Encrypted      bool
	PayloadJSON    string
	IdempotencyKey string
}

// Confirmation is the downstream acknowledgement of one submission.
type Confirmation struct {
	// TxHash is the ledger transaction identifier.
	TxHash string
	// Fee is the observed cost of the submission, passed to the
	// validator monitor as a routing hint.
	Fee int64
}

// LedgerSubmitter submits one anchor record to a validator endpoint.
//
// Implementations must honor the context deadline: the driver applies a
// per-attempt timeout and treats expiry as a failure for both the
// circuit breaker and the validator monitor. Submission is assumed
// idempotent or duplicate-tolerant downstream.
type LedgerSubmitter interface {
	Submit(ctx context.Context, endpointURL string, sub Submission) (Confirmation, error)
}

// SubmitterFunc adapts a function to the LedgerSubmitter interface.
type SubmitterFunc func(ctx context.Context, endpointURL string, sub Submission) (Confirmation, error)

// Submit implements LedgerSubmitter.
func (f SubmitterFunc) Submit(ctx context.Context, endpointURL string, sub Submission) (Confirmation, error) {
	return f(ctx, endpointURL, sub)
}
