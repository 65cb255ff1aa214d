package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	encoderDomain "github.com/allisson/fieldcrypt/internal/encoder/domain"
	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	"github.com/allisson/fieldcrypt/internal/envelope/http/mocks"
	envelopeService "github.com/allisson/fieldcrypt/internal/envelope/service"
	envelopeUseCase "github.com/allisson/fieldcrypt/internal/envelope/usecase"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

var _ Encoder[string] = (*EmailEncoder)(nil)

type fakeKMS struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func (f *fakeKMS) GenerateDataKey(context.Context) (*kmsDomain.DataKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	wrapped := []byte(fmt.Sprintf("wrapped-%d", len(f.keys)))
	f.keys[string(wrapped)] = bytes.Clone(key)
	return kmsDomain.NewDataKey(key, wrapped), nil
}

func (f *fakeKMS) UnwrapDataKey(_ context.Context, wrapped []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[string(wrapped)]
	if !ok {
		return nil, kmsDomain.ErrUnwrapFailed
	}
	return bytes.Clone(key), nil
}

func newTestEngine(t *testing.T) envelopeUseCase.Engine {
	t.Helper()

	hasher, err := envelopeService.NewHMACSearchHasher("pepper")
	require.NoError(t, err)

	engine, err := envelopeUseCase.NewEngine(
		&fakeKMS{keys: make(map[string][]byte)},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		envelopeUseCase.WithSearchHasher(hasher),
	)
	require.NoError(t, err)
	return engine
}

func entityIs(entity string) any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		return envelopeDomain.EntityFromContext(ctx) == entity
	})
}

func TestAPIKeyEncoder(t *testing.T) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		encoder := NewAPIKeyEncoder(newTestEngine(t))
		key := encoderDomain.APIKey{
			Key:      "sk-test-1234",
			Metadata: map[string]any{"source": "demo"},
			IssuedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}

		result, err := encoder.Encrypt(ctx, key)
		require.NoError(t, err)
		assert.NotContains(t, string(result.Ciphertext), "sk-test-1234")

		decrypted, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, key, decrypted)
	})

	t.Run("MissingKey", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewAPIKeyEncoder(engine)

		_, err := encoder.Encrypt(ctx, encoderDomain.APIKey{Metadata: map[string]any{"source": "demo"}})
		assert.ErrorIs(t, err, encoderDomain.ErrInvalidAPIKey)
		engine.AssertNotCalled(t, "Encrypt", mock.Anything, mock.Anything)
	})

	t.Run("SetsEntity", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewAPIKeyEncoder(engine)
		result := &envelopeDomain.EncryptionResult{}

		engine.On("Encrypt", entityIs(encoderDomain.EntityAPIKeys), mock.Anything).Return(result, nil).Once()

		_, err := encoder.Encrypt(ctx, encoderDomain.APIKey{Key: "k"})
		require.NoError(t, err)
		engine.AssertExpectations(t)
	})

	t.Run("KeepsCallerEntity", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewAPIKeyEncoder(engine)

		engine.On("Encrypt", entityIs("integrations"), mock.Anything).
			Return(&envelopeDomain.EncryptionResult{}, nil).Once()

		_, err := encoder.Encrypt(envelopeDomain.WithEntity(ctx, "integrations"), encoderDomain.APIKey{Key: "k"})
		require.NoError(t, err)
		engine.AssertExpectations(t)
	})

	t.Run("EngineErrorUnchanged", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewAPIKeyEncoder(engine)
		result := &envelopeDomain.EncryptionResult{}

		engine.On("Decrypt", mock.Anything, result).Return(nil, envelopeDomain.ErrIntegrityViolation)

		_, err := encoder.Decrypt(ctx, result)
		assert.Equal(t, envelopeDomain.ErrIntegrityViolation, err)
	})

	t.Run("MalformedEnvelope", func(t *testing.T) {
		tests := []struct {
			name      string
			plaintext string
		}{
			{name: "not json", plaintext: "sk-test-1234"},
			{name: "wrong shape", plaintext: `["sk-test-1234"]`},
			{name: "missing key", plaintext: `{"metadata":{"source":"demo"}}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				engine := &mocks.MockEngine{}
				encoder := NewAPIKeyEncoder(engine)
				result := &envelopeDomain.EncryptionResult{}

				engine.On("Decrypt", mock.Anything, result).Return([]byte(tt.plaintext), nil)

				_, err := encoder.Decrypt(ctx, result)
				assert.ErrorIs(t, err, encoderDomain.ErrMalformedEnvelope)
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			})
		}
	})
}

func TestOAuthTokenEncoder(t *testing.T) {
	ctx := context.Background()
	encoder := NewOAuthTokenEncoder(newTestEngine(t))

	t.Run("RoundTrip", func(t *testing.T) {
		expiresAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		token := encoderDomain.OAuthToken{
			AccessToken:  "ya29.a0AfH6",
			RefreshToken: "1//0gLm",
			ExpiresAt:    &expiresAt,
			Scope:        "openid email",
		}

		result, err := encoder.Encrypt(ctx, token)
		require.NoError(t, err)

		decrypted, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, token, decrypted)
	})

	t.Run("AccessTokenOnly", func(t *testing.T) {
		token := encoderDomain.OAuthToken{AccessToken: "ya29.a0AfH6"}

		result, err := encoder.Encrypt(ctx, token)
		require.NoError(t, err)

		decrypted, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, token, decrypted)
		assert.Nil(t, decrypted.ExpiresAt)
	})

	t.Run("MissingAccessToken", func(t *testing.T) {
		_, err := encoder.Encrypt(ctx, encoderDomain.OAuthToken{RefreshToken: "1//0gLm"})
		assert.ErrorIs(t, err, encoderDomain.ErrInvalidOAuthToken)
	})
}

func TestEmailEncoder(t *testing.T) {
	ctx := context.Background()

	t.Run("RoundTripNormalizes", func(t *testing.T) {
		encoder := NewEmailEncoder(newTestEngine(t))

		result, err := encoder.Encrypt(ctx, "  Alice@Example.COM ")
		require.NoError(t, err)

		address, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", address)
	})

	t.Run("Invalid", func(t *testing.T) {
		encoder := NewEmailEncoder(newTestEngine(t))

		_, err := encoder.Encrypt(ctx, "not-an-email")
		assert.ErrorIs(t, err, encoderDomain.ErrInvalidEmail)

		_, _, err = encoder.EncryptWithHash(ctx, "")
		assert.ErrorIs(t, err, encoderDomain.ErrInvalidEmail)
	})

	t.Run("EncryptWithHash", func(t *testing.T) {
		encoder := NewEmailEncoder(newTestEngine(t))

		result, hash, err := encoder.EncryptWithHash(ctx, "a@b.com")
		require.NoError(t, err)
		assert.Len(t, hash, 64)

		lookup, err := encoder.Hash("A@B.COM ")
		require.NoError(t, err)
		assert.Equal(t, hash, lookup)

		address, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", address)
	})

	t.Run("EncryptWithHash_SaltNotSet", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewEmailEncoder(engine)

		engine.On("Hash", "a@b.com").Return("", envelopeDomain.ErrSearchSaltNotSet)

		_, _, err := encoder.EncryptWithHash(ctx, "a@b.com")
		assert.ErrorIs(t, err, envelopeDomain.ErrSearchSaltNotSet)
		engine.AssertNotCalled(t, "Encrypt", mock.Anything, mock.Anything)
	})

	t.Run("SetsEntity", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewEmailEncoder(engine)

		engine.On("Encrypt", entityIs(encoderDomain.EntityUsers), mock.Anything).
			Return(&envelopeDomain.EncryptionResult{}, nil).Once()

		_, err := encoder.Encrypt(ctx, "a@b.com")
		require.NoError(t, err)
		engine.AssertExpectations(t)
	})
}

type backupPayload struct {
	Version int               `json:"version"`
	Rows    []string          `json:"rows"`
	Labels  map[string]string `json:"labels"`
}

func TestBackupEncoder(t *testing.T) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		encoder := NewBackupEncoder[backupPayload](newTestEngine(t), "")
		backup := backupPayload{Version: 3, Rows: []string{"a", "b"}, Labels: map[string]string{"env": "prod"}}

		result, err := encoder.Encrypt(ctx, backup)
		require.NoError(t, err)

		decrypted, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, backup, decrypted)
	})

	t.Run("Bytes", func(t *testing.T) {
		encoder := NewBackupEncoder[[]byte](newTestEngine(t), "snapshots")
		blob := bytes.Repeat([]byte{0xde, 0xad}, 4096)

		result, err := encoder.Encrypt(ctx, blob)
		require.NoError(t, err)

		decrypted, err := encoder.Decrypt(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, blob, decrypted)
	})

	t.Run("Unserializable", func(t *testing.T) {
		encoder := NewBackupEncoder[chan int](&mocks.MockEngine{}, "")

		_, err := encoder.Encrypt(ctx, make(chan int))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("DefaultEntity", func(t *testing.T) {
		engine := &mocks.MockEngine{}
		encoder := NewBackupEncoder[backupPayload](engine, "")

		engine.On("Encrypt", entityIs(encoderDomain.EntityBackups), mock.Anything).
			Return(&envelopeDomain.EncryptionResult{}, nil).Once()

		_, err := encoder.Encrypt(ctx, backupPayload{})
		require.NoError(t, err)
		engine.AssertExpectations(t)
	})
}
