package domain

import (
	"github.com/allisson/fieldcrypt/internal/errors"
)

var (
	// ErrSignatureInvalid indicates an audit record whose signature does not match its
	// content.
	ErrSignatureInvalid = errors.Wrap(errors.ErrUnprocessable, "audit record signature is invalid")

	// ErrSigningKeyNotSet indicates a signer constructed without key material.
	ErrSigningKeyNotSet = errors.New("audit signing key is not set")

	// ErrInvalidRetention indicates a negative retention period.
	ErrInvalidRetention = errors.Wrap(errors.ErrInvalidInput, "retention days must not be negative")
)
