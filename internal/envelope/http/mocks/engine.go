// Package mocks provides mock implementations for testing HTTP handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
)

// MockEngine is a mock implementation of usecase.Engine for testing.
type MockEngine struct {
	mock.Mock
}

// Encrypt mocks the Encrypt method of Engine.
func (m *MockEngine) Encrypt(ctx context.Context, plaintext []byte) (*envelopeDomain.EncryptionResult, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*envelopeDomain.EncryptionResult), args.Error(1)
}

// Decrypt mocks the Decrypt method of Engine.
func (m *MockEngine) Decrypt(ctx context.Context, result *envelopeDomain.EncryptionResult) ([]byte, error) {
	args := m.Called(ctx, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Rotate mocks the Rotate method of Engine.
func (m *MockEngine) Rotate(
	ctx context.Context,
	result *envelopeDomain.EncryptionResult,
) (*envelopeDomain.EncryptionResult, error) {
	args := m.Called(ctx, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*envelopeDomain.EncryptionResult), args.Error(1)
}

// Hash mocks the Hash method of Engine.
func (m *MockEngine) Hash(value string) (string, error) {
	args := m.Called(value)
	return args.String(0), args.Error(1)
}
