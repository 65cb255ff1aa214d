package domain

import (
	"github.com/allisson/fieldcrypt/internal/errors"
)

// Encoder error definitions.
var (
	// ErrMalformedEnvelope indicates a decrypted value that does not parse as the
	// expected envelope. Decryption succeeded, so this points at a value written by
	// another encoder or corrupted before encryption.
	ErrMalformedEnvelope = errors.Wrap(errors.ErrInvalidInput, "malformed envelope")

	// ErrInvalidAPIKey indicates an API key envelope that fails validation.
	ErrInvalidAPIKey = errors.Wrap(errors.ErrInvalidInput, "invalid api key")

	// ErrInvalidOAuthToken indicates an OAuth token envelope that fails validation.
	ErrInvalidOAuthToken = errors.Wrap(errors.ErrInvalidInput, "invalid oauth token")

	// ErrInvalidEmail indicates an email address that fails validation.
	ErrInvalidEmail = errors.Wrap(errors.ErrInvalidInput, "invalid email")
)
