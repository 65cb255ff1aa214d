// Package domain defines the audit trail of envelope operations.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operation names recorded in the audit trail.
const (
	OperationEncrypt = "encrypt"
	OperationDecrypt = "decrypt"
	OperationRotate  = "rotate"
)

// Outcome of an audited operation.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AuditRecord is one append-only entry of the audit trail. Records never hold
// plaintext, ciphertext or key material.
type AuditRecord struct {
	ID         uuid.UUID
	Operation  string
	Entity     string
	Status     string
	DurationMs int64
	// Signature is an HMAC-SHA256 over the canonical record, nil when no signing key
	// was configured at write time.
	Signature []byte
	CreatedAt time.Time
}

// IsSigned reports whether the record carries a signature.
func (r *AuditRecord) IsSigned() bool {
	return len(r.Signature) > 0
}

// VerificationReport summarizes a batch signature check.
type VerificationReport struct {
	TotalChecked  int64
	ValidCount    int64
	InvalidCount  int64
	UnsignedCount int64
	InvalidIDs    []uuid.UUID
}

// Passed reports whether no record failed verification. Unsigned records do not fail.
func (r *VerificationReport) Passed() bool {
	return r.InvalidCount == 0
}
