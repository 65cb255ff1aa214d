// Package domain defines the persisted form of an envelope encrypted value.
//
// An EncryptionResult is the only thing callers store. It is self-contained: the wrapped
// data key travels with the ciphertext, so decryption needs nothing but the result and
// access to the master key that wrapped the data key.
package domain

import (
	"fmt"
)

const (
	// IVSize is the size in bytes of the AES-GCM nonce.
	IVSize = 16

	// AuthTagSize is the size in bytes of the AES-GCM authentication tag.
	AuthTagSize = 16
)

// EncryptionResult is the output of one encryption operation. All four fields come from
// the same operation; the wrapped data key is bound into the authentication tag, so
// fields taken from two different results never decrypt.
type EncryptionResult struct {
	Ciphertext     []byte
	IV             []byte
	AuthTag        []byte
	WrappedDataKey []byte
}

// Validate checks that every field is present and sized correctly. An empty plaintext
// encrypts to an empty ciphertext, so Ciphertext may be empty but not nil.
func (r *EncryptionResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: result is nil", ErrInvalidEncryptionResult)
	}
	if r.Ciphertext == nil {
		return fmt.Errorf("%w: ciphertext is missing", ErrInvalidEncryptionResult)
	}
	if len(r.IV) != IVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidEncryptionResult, IVSize, len(r.IV))
	}
	if len(r.AuthTag) != AuthTagSize {
		return fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrInvalidEncryptionResult, AuthTagSize, len(r.AuthTag))
	}
	if len(r.WrappedDataKey) == 0 {
		return fmt.Errorf("%w: wrapped data key is missing", ErrInvalidEncryptionResult)
	}
	return nil
}
