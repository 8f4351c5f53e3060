// Package fingerprint computes content fingerprints for anchor records
// and batch-level hashes for sync audit entries.
//
// All hashes are SHA-256 with domain separation so a record fingerprint
// can never collide with a batch hash over the same bytes. String inputs
// are NFC normalized before hashing: the same logical fingerprint typed
// in decomposed or precomposed Unicode hashes identically.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for hash separation.
// Version suffix enables future algorithm migration.
const (
	DomainRecord = "anchorsync/record/v1"
	DomainBatch  = "anchorsync/batch/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Record computes the content fingerprint for a raw record payload.
func Record(payload []byte) string {
	return hashWithDomain(DomainRecord, payload)
}

// Batch computes a batch-level hash over the record fingerprints that were
// attempted in a sync batch, in batch order. Each fingerprint is NFC
// normalized and terminated with a newline so ["ab","c"] and ["a","bc"]
// hash differently.
func Batch(fingerprints []string) string {
	h := sha256.New()
	h.Write([]byte(DomainBatch))
	h.Write([]byte{0x00})
	for _, fp := range fingerprints {
		h.Write([]byte(norm.NFC.String(fp)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
