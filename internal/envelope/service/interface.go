// Package service provides the cryptographic primitives of the envelope engine: the
// authenticated cipher that seals field values and the keyed search hash.
package service

// Cipher seals and opens field values under a single data key.
type Cipher interface {
	// Seal encrypts plaintext with a fresh random IV and authenticates aad alongside it.
	Seal(plaintext, aad []byte) (ciphertext, iv, tag []byte, err error)

	// Open verifies the tag and decrypts. Any mismatch returns ErrIntegrityViolation
	// and no plaintext.
	Open(ciphertext, iv, tag, aad []byte) ([]byte, error)
}

// SearchHasher derives a deterministic lookup hash for a field value.
type SearchHasher interface {
	Hash(value string) string
}
