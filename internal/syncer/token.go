package syncer

import "github.com/google/uuid"

// BatchTokenGenerator generates unique batch tokens for log correlation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type BatchTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered RFC 4122 UUIDs, so batch tokens
// sort chronologically in log output.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator always returns the same token. Test use only.
type FixedGenerator struct {
	Token string
}

// Generate returns the fixed token.
func (g FixedGenerator) Generate() string {
	return g.Token
}
