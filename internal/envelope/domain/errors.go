package domain

import (
	"github.com/allisson/fieldcrypt/internal/errors"
)

// Envelope error definitions.
var (
	// ErrInvalidEncryptionResult indicates a result with missing or malformed fields.
	ErrInvalidEncryptionResult = errors.Wrap(errors.ErrInvalidInput, "invalid encryption result")

	// ErrIntegrityViolation indicates the authentication tag did not verify: the value was
	// tampered with, corrupted, or its fields come from different results. It is a
	// security event.
	ErrIntegrityViolation = errors.Wrap(errors.ErrUnprocessable, "integrity violation")

	// ErrSearchSaltNotSet indicates ENCRYPTION_SEARCH_SALT is empty.
	ErrSearchSaltNotSet = errors.New("search salt is not set: ENCRYPTION_SEARCH_SALT is empty")

	// ErrInvalidFieldName indicates a column group field name that is empty or not a
	// lowercase identifier.
	ErrInvalidFieldName = errors.Wrap(errors.ErrInvalidInput, "invalid field name")
)
