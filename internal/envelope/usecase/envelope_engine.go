package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	envelopeService "github.com/allisson/fieldcrypt/internal/envelope/service"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// Option configures the engine.
type Option func(*envelopeEngine)

// WithDataKeyCache caches unwrapped data keys between decryptions.
func WithDataKeyCache(cache DataKeyCache) Option {
	return func(e *envelopeEngine) { e.cache = cache }
}

// WithSearchHasher enables Hash.
func WithSearchHasher(hasher SearchHasher) Option {
	return func(e *envelopeEngine) { e.hasher = hasher }
}

// WithUnwrapDeduplication collapses concurrent cache misses for the same wrapped key
// into one unwrap call. It only takes effect with a cache. Callers that joined an
// in-flight unwrap share its outcome, including a cancellation of the first caller's
// context.
func WithUnwrapDeduplication() Option {
	return func(e *envelopeEngine) { e.dedupe = true }
}

type noCache struct{}

func (noCache) Get([]byte) ([]byte, bool) { return nil, false }
func (noCache) Put([]byte, []byte)        {}

type envelopeEngine struct {
	kms    DataKeyClient
	cache  DataKeyCache
	hasher SearchHasher
	logger *slog.Logger

	dedupe bool
	group  singleflight.Group
}

// NewEngine creates the engine. A nil client fails with ErrKMSNotConfigured so a
// deployment without a master key is rejected at wiring time, not on first use.
func NewEngine(kms DataKeyClient, logger *slog.Logger, opts ...Option) (Engine, error) {
	if kms == nil {
		return nil, kmsDomain.ErrKMSNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &envelopeEngine{kms: kms, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = noCache{}
		e.dedupe = false
	}

	return e, nil
}

func (e *envelopeEngine) Encrypt(ctx context.Context, plaintext []byte) (*envelopeDomain.EncryptionResult, error) {
	dataKey, err := e.kms.GenerateDataKey(ctx)
	if err != nil {
		return nil, err
	}
	defer dataKey.Destroy()

	aead, err := envelopeService.NewAESGCM(dataKey.Plaintext())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	wrapped := bytes.Clone(dataKey.Wrapped())
	ciphertext, iv, tag, err := aead.Seal(plaintext, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}

	return &envelopeDomain.EncryptionResult{
		Ciphertext:     ciphertext,
		IV:             iv,
		AuthTag:        tag,
		WrappedDataKey: wrapped,
	}, nil
}

func (e *envelopeEngine) Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) ([]byte, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}

	key, err := e.dataKey(ctx, result.WrappedDataKey)
	if err != nil {
		return nil, err
	}
	defer kmsDomain.Wipe(key)

	aead, err := envelopeService.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kmsDomain.ErrUnwrapFailed, err)
	}

	plaintext, err := aead.Open(result.Ciphertext, result.IV, result.AuthTag, result.WrappedDataKey)
	if err != nil {
		if errors.Is(err, envelopeDomain.ErrIntegrityViolation) {
			e.logger.ErrorContext(ctx, "envelope integrity violation",
				slog.String("event", "security"),
				slog.String("entity", envelopeDomain.EntityFromContext(ctx)),
				slog.Int("ciphertext_bytes", len(result.Ciphertext)),
			)
		}
		return nil, err
	}

	return plaintext, nil
}

func (e *envelopeEngine) Rotate(
	ctx context.Context,
	result *envelopeDomain.EncryptionResult,
) (*envelopeDomain.EncryptionResult, error) {
	plaintext, err := e.Decrypt(ctx, result)
	if err != nil {
		return nil, err
	}
	defer kmsDomain.Wipe(plaintext)

	return e.Encrypt(ctx, plaintext)
}

func (e *envelopeEngine) Hash(value string) (string, error) {
	if e.hasher == nil {
		return "", envelopeDomain.ErrSearchSaltNotSet
	}
	return e.hasher.Hash(value), nil
}

// dataKey returns an unwrapped key the caller owns and must wipe.
func (e *envelopeEngine) dataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	if key, ok := e.cache.Get(wrapped); ok {
		return key, nil
	}
	if !e.dedupe {
		return e.unwrap(ctx, wrapped)
	}

	// The shared result only fills the cache; each caller then takes its own copy.
	_, err, _ := e.group.Do(base64.StdEncoding.EncodeToString(wrapped), func() (any, error) {
		key, err := e.unwrap(ctx, wrapped)
		if err != nil {
			return nil, err
		}
		kmsDomain.Wipe(key)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if key, ok := e.cache.Get(wrapped); ok {
		return key, nil
	}
	return e.unwrap(ctx, wrapped)
}

func (e *envelopeEngine) unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	key, err := e.kms.UnwrapDataKey(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	e.cache.Put(wrapped, key)
	return key, nil
}
