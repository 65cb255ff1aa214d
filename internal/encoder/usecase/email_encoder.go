package usecase

import (
	"context"

	encoderDomain "github.com/allisson/fieldcrypt/internal/encoder/domain"
	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	envelopeUseCase "github.com/allisson/fieldcrypt/internal/envelope/usecase"
)

// EmailEncoder seals email addresses and computes their search hash.
type EmailEncoder struct {
	engine envelopeUseCase.Engine
	inner  *jsonEncoder[encoderDomain.Email]
}

// NewEmailEncoder seals emails under the users entity.
func NewEmailEncoder(engine envelopeUseCase.Engine) *EmailEncoder {
	return &EmailEncoder{
		engine: engine,
		inner: newJSONEncoder(engine, encoderDomain.EntityUsers, func(e *encoderDomain.Email) error {
			e.Address = encoderDomain.NormalizeEmail(e.Address)
			return e.Validate()
		}),
	}
}

// Encrypt normalizes and validates address before sealing it.
func (e *EmailEncoder) Encrypt(ctx context.Context, address string) (*envelopeDomain.EncryptionResult, error) {
	return e.inner.Encrypt(ctx, encoderDomain.Email{Address: address})
}

// Decrypt returns the normalized address.
func (e *EmailEncoder) Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) (string, error) {
	email, err := e.inner.Decrypt(ctx, result)
	if err != nil {
		return "", err
	}
	return email.Address, nil
}

// Hash returns the search hash of address for lookups on <field>_hash.
func (e *EmailEncoder) Hash(address string) (string, error) {
	return e.engine.Hash(address)
}

// EncryptWithHash seals address and returns its search hash, the two values a row
// stores for an email column. The hash is computed first so a missing salt fails
// before any call to the key service.
func (e *EmailEncoder) EncryptWithHash(
	ctx context.Context,
	address string,
) (*envelopeDomain.EncryptionResult, string, error) {
	email := encoderDomain.Email{Address: encoderDomain.NormalizeEmail(address)}
	if err := email.Validate(); err != nil {
		return nil, "", err
	}

	hash, err := e.engine.Hash(email.Address)
	if err != nil {
		return nil, "", err
	}

	result, err := e.inner.Encrypt(ctx, email)
	if err != nil {
		return nil, "", err
	}
	return result, hash, nil
}
