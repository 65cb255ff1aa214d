// Package usecase implements the envelope encryption engine: encrypt, decrypt, rotate and
// hash, the four operations the rest of the system calls.
package usecase

import (
	"context"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// DataKeyClient is the part of the key management client the engine uses.
type DataKeyClient interface {
	GenerateDataKey(ctx context.Context) (*kmsDomain.DataKey, error)
	UnwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error)
}

// DataKeyCache holds unwrapped data keys. Get returns a copy the caller may wipe; Put
// stores a copy.
type DataKeyCache interface {
	Get(wrapped []byte) ([]byte, bool)
	Put(wrapped, key []byte)
}

// SearchHasher derives the lookup hash of a value.
type SearchHasher interface {
	Hash(value string) string
}

// Engine encrypts field values under per-record data keys.
//
// Every method is safe for concurrent use. No method retries: callers retry
// kmsDomain.ErrKeyUnavailable with backoff and treat every other error as final.
type Engine interface {
	// Encrypt seals plaintext under a fresh data key and IV.
	Encrypt(ctx context.Context, plaintext []byte) (*envelopeDomain.EncryptionResult, error)

	// Decrypt returns the plaintext of result or an error; it never returns partial
	// plaintext. The caller should wipe the returned slice once done with it.
	Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) ([]byte, error)

	// Rotate re-encrypts the value of result under a new data key and IV.
	Rotate(ctx context.Context, result *envelopeDomain.EncryptionResult) (*envelopeDomain.EncryptionResult, error)

	// Hash returns the search hash of value. It fails with ErrSearchSaltNotSet when no
	// salt is configured.
	Hash(value string) (string, error)
}
