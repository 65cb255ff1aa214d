// Package service implements the key management client: the gateway between this
// service and the remote master key.
//
// Two backends satisfy the same contract. AWSClient talks to AWS KMS directly and gets
// the full key lifecycle from it. KeeperClient reaches any gocloud.dev/secrets keeper
// (gcpkms, azurekeyvault, hashivault, awskms or a local base64key) for wrapping and
// tracks the key lifecycle itself in a MasterKeyRepository.
package service

import (
	"context"
	"time"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// KeyManager manages the lifecycle of master keys. It does not need a configured default
// key, so administrative commands can run before any key exists.
type KeyManager interface {
	// CreateKey creates a new enabled master key.
	CreateKey(ctx context.Context, input kmsDomain.CreateKeyInput) (*kmsDomain.MasterKey, error)

	// DescribeKey returns the metadata of the key referenced by id or alias.
	DescribeKey(ctx context.Context, keyID string) (*kmsDomain.MasterKey, error)

	// EnableRotation turns on automatic annual rotation of the master key material.
	// This is independent of per-record data key rotation.
	EnableRotation(ctx context.Context, keyID string) error

	// RotationStatus reports whether automatic rotation is on.
	RotationStatus(ctx context.Context, keyID string) (bool, error)

	// CreateAlias points a new alias at the key.
	CreateAlias(ctx context.Context, keyID, name string) error

	// ListAliases lists every alias with its target key.
	ListAliases(ctx context.Context) ([]kmsDomain.Alias, error)

	// ScheduleDeletion moves the key to PendingDeletion. pendingDays must be within
	// [7, 30]; out of range values fail with ErrInvalidPendingWindow before any remote call.
	ScheduleDeletion(ctx context.Context, keyID string, pendingDays int) (time.Time, error)

	// CancelDeletion moves a key pending deletion back to Enabled. It fails with
	// ErrKeyNotPendingDeletion when the key was not pending deletion.
	CancelDeletion(ctx context.Context, keyID string) error

	// SetPolicy replaces the key policy document.
	SetPolicy(ctx context.Context, keyID, policy string) error

	// GetPolicy returns the key policy document.
	GetPolicy(ctx context.Context, keyID string) (string, error)

	// Tag adds or overwrites resource tags.
	Tag(ctx context.Context, keyID string, tags map[string]string) error

	// ListTags returns the resource tags.
	ListTags(ctx context.Context, keyID string) (map[string]string, error)

	// Close releases provider connections.
	Close() error
}

// Client is the full key management client: lifecycle management plus data key
// generation and unwrapping under the configured master key.
//
// Every method performs network I/O and honours ctx cancellation and the configured
// operation timeout. No method retries; callers retry ErrKeyUnavailable with backoff.
type Client interface {
	KeyManager

	// GenerateDataKey returns a fresh 32-byte data key and its wrapped form. Fails with
	// ErrKeyUnavailable if the master key is disabled, pending deletion or unreachable.
	GenerateDataKey(ctx context.Context) (*kmsDomain.DataKey, error)

	// UnwrapDataKey recovers the plaintext of a wrapped data key. Fails with
	// ErrUnwrapFailed when the wrapped key belongs to another or a deleted master key or
	// is corrupted, and with ErrKeyUnavailable on transient failures.
	UnwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error)
}

// MasterKeyRepository persists the lifecycle metadata of keeper master keys.
//
// Implementations participate in the transaction carried by ctx (database.GetTx).
type MasterKeyRepository interface {
	// Create stores a new master key. Aliases are not persisted by Create.
	Create(ctx context.Context, key *kmsDomain.MasterKey) error

	// Update overwrites the mutable fields of an existing master key.
	Update(ctx context.Context, key *kmsDomain.MasterKey) error

	// Get returns the master key with the given id or ErrMasterKeyNotFound.
	Get(ctx context.Context, id string) (*kmsDomain.MasterKey, error)

	// CreateAlias stores a new alias or fails with ErrAliasAlreadyExists.
	CreateAlias(ctx context.Context, alias *kmsDomain.Alias) error

	// GetAlias returns the alias with the given name or ErrAliasNotFound.
	GetAlias(ctx context.Context, name string) (*kmsDomain.Alias, error)

	// ListAliases returns every alias ordered by name.
	ListAliases(ctx context.Context) ([]*kmsDomain.Alias, error)
}

// Keeper wraps and unwraps small payloads with a remote key. *secrets.Keeper from
// gocloud.dev/secrets satisfies it.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
