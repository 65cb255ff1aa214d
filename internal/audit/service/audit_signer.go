// Package service signs audit records for tamper evidence.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	auditDomain "github.com/allisson/fieldcrypt/internal/audit/domain"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// signingInfo is versioned so the derivation can change without ambiguity.
var signingInfo = []byte("fieldcrypt-audit-signing-v1")

// AuditSigner computes and checks audit record signatures.
type AuditSigner interface {
	Sign(record *auditDomain.AuditRecord) ([]byte, error)
	Verify(record *auditDomain.AuditRecord) error
}

type auditSigner struct {
	signingKey []byte
}

// NewAuditSigner derives a 32-byte HMAC key from secret with HKDF-SHA256. The search
// salt is the secret in practice, so the signing key is distinct from the hash key even
// though both come from one setting.
func NewAuditSigner(secret []byte) (AuditSigner, error) {
	if len(secret) == 0 {
		return nil, auditDomain.ErrSigningKeyNotSet
	}

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, signingInfo), signingKey); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	return &auditSigner{signingKey: signingKey}, nil
}

// canonicalize encodes id || operation || entity || status || duration_ms || created_at.
// Strings are length-prefixed so field boundaries are unambiguous.
func canonicalize(record *auditDomain.AuditRecord) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, record.ID[:]...)
	buf = appendLengthPrefixed(buf, []byte(record.Operation))
	buf = appendLengthPrefixed(buf, []byte(record.Entity))
	buf = appendLengthPrefixed(buf, []byte(record.Status))
	buf = binary.BigEndian.AppendUint64(buf, uint64(record.DurationMs))
	buf = binary.BigEndian.AppendUint64(buf, uint64(record.CreatedAt.UTC().UnixMicro()))
	return buf
}

func appendLengthPrefixed(buf, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// Sign returns the 32-byte HMAC-SHA256 of the canonical record.
func (a *auditSigner) Sign(record *auditDomain.AuditRecord) ([]byte, error) {
	mac := hmac.New(sha256.New, a.signingKey)
	mac.Write(canonicalize(record))
	return mac.Sum(nil), nil
}

// Verify returns ErrSignatureInvalid when the stored signature does not match.
func (a *auditSigner) Verify(record *auditDomain.AuditRecord) error {
	expected, err := a.Sign(record)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}
	defer kmsDomain.Wipe(expected)

	if !hmac.Equal(record.Signature, expected) {
		return auditDomain.ErrSignatureInvalid
	}
	return nil
}
