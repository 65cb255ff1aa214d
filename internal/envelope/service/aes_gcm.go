package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
)

// AESGCMCipher seals values with AES-256-GCM using a 16-byte nonce and a 16-byte tag.
//
// The nonce is longer than the GCM default of 12 bytes so stored values keep the IV width
// of existing columns. GCM derives the counter block from a GHASH of the nonce in that
// case, which is as safe for random nonces. The tag is returned separately from the
// ciphertext because each is persisted in its own column.
//
// A cipher is bound to one data key and is safe for concurrent use.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates a cipher for a 32-byte key.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be exactly 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, envelopeDomain.IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Seal encrypts plaintext under a random IV from crypto/rand.
func (a *AESGCMCipher) Seal(plaintext, aad []byte) (ciphertext, iv, tag []byte, err error) {
	iv = make([]byte, envelopeDomain.IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := a.aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - a.aead.Overhead()

	return sealed[:split:split], iv, sealed[split:], nil
}

// Open verifies and decrypts. The caller has already validated IV and tag sizes; a size
// mismatch here is still reported as an integrity violation.
func (a *AESGCMCipher) Open(ciphertext, iv, tag, aad []byte) ([]byte, error) {
	if len(iv) != a.aead.NonceSize() || len(tag) != a.aead.Overhead() {
		return nil, envelopeDomain.ErrIntegrityViolation
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := a.aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envelopeDomain.ErrIntegrityViolation, err)
	}
	return plaintext, nil
}
