package domain

import (
	"github.com/allisson/fieldcrypt/internal/errors"
)

// Key management error definitions.
//
// These wrap the categories from internal/errors so callers can branch either on the
// precise condition (errors.Is(err, ErrKeyUnavailable)) or on the category
// (errors.Is(err, errors.ErrUnavailable)).
var (
	// ErrKeyUnavailable indicates the master key cannot serve the request right now: it is
	// disabled, pending deletion, or the key service could not be reached. Retryable.
	ErrKeyUnavailable = errors.Wrap(errors.ErrUnavailable, "master key unavailable")

	// ErrUnwrapFailed indicates a wrapped data key could not be unwrapped: it was produced
	// under a different or deleted master key, or it is corrupted. Fatal for the record.
	ErrUnwrapFailed = errors.Wrap(errors.ErrUnprocessable, "data key unwrap failed")

	// ErrInvalidPendingWindow indicates a deletion waiting period outside [7, 30] days.
	ErrInvalidPendingWindow = errors.Wrap(errors.ErrInvalidInput, "pending window must be between 7 and 30 days")

	// ErrInvalidKeyID indicates an empty or malformed master key reference.
	ErrInvalidKeyID = errors.Wrap(errors.ErrInvalidInput, "invalid key id")

	// ErrInvalidAlias indicates an alias name that does not start with "alias/" or is empty.
	ErrInvalidAlias = errors.Wrap(errors.ErrInvalidInput, "alias name must start with \"alias/\"")

	// ErrInvalidKeyURI indicates a keeper master key registered without a key URI.
	ErrInvalidKeyURI = errors.Wrap(errors.ErrInvalidInput, "invalid key uri")

	// ErrMasterKeyNotFound indicates the referenced master key does not exist.
	ErrMasterKeyNotFound = errors.Wrap(errors.ErrNotFound, "master key not found")

	// ErrMasterKeyAlreadyExists indicates a master key with the same id is already stored.
	ErrMasterKeyAlreadyExists = errors.Wrap(errors.ErrConflict, "master key already exists")

	// ErrAliasNotFound indicates the referenced alias does not exist.
	ErrAliasNotFound = errors.Wrap(errors.ErrNotFound, "alias not found")

	// ErrInvalidPolicy indicates a key policy that is not a JSON document.
	ErrInvalidPolicy = errors.Wrap(errors.ErrInvalidInput, "key policy must be a json document")

	// ErrAliasAlreadyExists indicates an alias with the same name is already registered.
	ErrAliasAlreadyExists = errors.Wrap(errors.ErrConflict, "alias already exists")

	// ErrKeyNotPendingDeletion indicates CancelDeletion was called on a key that is not
	// pending deletion.
	ErrKeyNotPendingDeletion = errors.Wrap(errors.ErrConflict, "master key is not pending deletion")

	// ErrKeyNotEnabled indicates a lifecycle transition that requires an enabled key.
	ErrKeyNotEnabled = errors.Wrap(errors.ErrConflict, "master key is not enabled")

	// ErrKMSNotConfigured indicates no master key reference was configured. A client is
	// never handed out in this state.
	ErrKMSNotConfigured = errors.New("kms is not configured: KMS_KEY_ID is empty")

	// ErrUnsupportedProvider indicates an unknown KMS_PROVIDER value.
	ErrUnsupportedProvider = errors.New("unsupported kms provider")
)
