// Package usecase provides typed encoders over the envelope engine. Each encoder
// serializes its value as JSON, seals it, and tags the context with the audit entity the
// value belongs to.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	encoderDomain "github.com/allisson/fieldcrypt/internal/encoder/domain"
	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	envelopeUseCase "github.com/allisson/fieldcrypt/internal/envelope/usecase"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// Encoder seals values of type T. Decrypt is the left inverse of Encrypt, up to the
// normalization Encrypt applies.
//
// Engine errors pass through unchanged. Decrypt only adds ErrMalformedEnvelope, for
// plaintext that is not a valid T.
type Encoder[T any] interface {
	Encrypt(ctx context.Context, value T) (*envelopeDomain.EncryptionResult, error)
	Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) (T, error)
}

type jsonEncoder[T any] struct {
	engine envelopeUseCase.Engine
	entity string
	// prepare normalizes and validates a value; it runs before sealing and after opening.
	prepare func(*T) error
}

func newJSONEncoder[T any](engine envelopeUseCase.Engine, entity string, prepare func(*T) error) *jsonEncoder[T] {
	return &jsonEncoder[T]{engine: engine, entity: entity, prepare: prepare}
}

// withEntity keeps an entity the caller already set.
func (e *jsonEncoder[T]) withEntity(ctx context.Context) context.Context {
	if envelopeDomain.EntityFromContext(ctx) != "" {
		return ctx
	}
	return envelopeDomain.WithEntity(ctx, e.entity)
}

func (e *jsonEncoder[T]) Encrypt(ctx context.Context, value T) (*envelopeDomain.EncryptionResult, error) {
	if e.prepare != nil {
		if err := e.prepare(&value); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode envelope: %w", apperrors.ErrInvalidInput, err)
	}
	defer kmsDomain.Wipe(payload)

	return e.engine.Encrypt(e.withEntity(ctx), payload)
}

func (e *jsonEncoder[T]) Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) (T, error) {
	var zero T

	payload, err := e.engine.Decrypt(e.withEntity(ctx), result)
	if err != nil {
		return zero, err
	}
	defer kmsDomain.Wipe(payload)

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return zero, fmt.Errorf("%w: %w", encoderDomain.ErrMalformedEnvelope, err)
	}
	if e.prepare != nil {
		if err := e.prepare(&value); err != nil {
			return zero, fmt.Errorf("%w: %w", encoderDomain.ErrMalformedEnvelope, err)
		}
	}

	return value, nil
}

// NewAPIKeyEncoder seals API keys under the api_keys entity.
func NewAPIKeyEncoder(engine envelopeUseCase.Engine) Encoder[encoderDomain.APIKey] {
	return newJSONEncoder(engine, encoderDomain.EntityAPIKeys, func(k *encoderDomain.APIKey) error {
		return k.Validate()
	})
}

// NewOAuthTokenEncoder seals OAuth token pairs under the oauth_tokens entity.
func NewOAuthTokenEncoder(engine envelopeUseCase.Engine) Encoder[encoderDomain.OAuthToken] {
	return newJSONEncoder(engine, encoderDomain.EntityOAuthTokens, func(t *encoderDomain.OAuthToken) error {
		return t.Validate()
	})
}

// NewBackupEncoder seals any JSON serializable value under entity.
func NewBackupEncoder[T any](engine envelopeUseCase.Engine, entity string) Encoder[T] {
	if entity == "" {
		entity = encoderDomain.EntityBackups
	}
	return newJSONEncoder[T](engine, entity, nil)
}
