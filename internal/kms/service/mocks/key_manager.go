// Package mocks provides mock implementations of the key management client for testing.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// MockKeyManager is a mock implementation of service.KeyManager.
type MockKeyManager struct {
	mock.Mock
}

// CreateKey mocks the CreateKey method.
func (m *MockKeyManager) CreateKey(
	ctx context.Context,
	input kmsDomain.CreateKeyInput,
) (*kmsDomain.MasterKey, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kmsDomain.MasterKey), args.Error(1)
}

// DescribeKey mocks the DescribeKey method.
func (m *MockKeyManager) DescribeKey(ctx context.Context, keyID string) (*kmsDomain.MasterKey, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kmsDomain.MasterKey), args.Error(1)
}

// EnableRotation mocks the EnableRotation method.
func (m *MockKeyManager) EnableRotation(ctx context.Context, keyID string) error {
	return m.Called(ctx, keyID).Error(0)
}

// RotationStatus mocks the RotationStatus method.
func (m *MockKeyManager) RotationStatus(ctx context.Context, keyID string) (bool, error) {
	args := m.Called(ctx, keyID)
	return args.Bool(0), args.Error(1)
}

// CreateAlias mocks the CreateAlias method.
func (m *MockKeyManager) CreateAlias(ctx context.Context, keyID, name string) error {
	return m.Called(ctx, keyID, name).Error(0)
}

// ListAliases mocks the ListAliases method.
func (m *MockKeyManager) ListAliases(ctx context.Context) ([]kmsDomain.Alias, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]kmsDomain.Alias), args.Error(1)
}

// ScheduleDeletion mocks the ScheduleDeletion method.
func (m *MockKeyManager) ScheduleDeletion(ctx context.Context, keyID string, pendingDays int) (time.Time, error) {
	args := m.Called(ctx, keyID, pendingDays)
	return args.Get(0).(time.Time), args.Error(1)
}

// CancelDeletion mocks the CancelDeletion method.
func (m *MockKeyManager) CancelDeletion(ctx context.Context, keyID string) error {
	return m.Called(ctx, keyID).Error(0)
}

// SetPolicy mocks the SetPolicy method.
func (m *MockKeyManager) SetPolicy(ctx context.Context, keyID, policy string) error {
	return m.Called(ctx, keyID, policy).Error(0)
}

// GetPolicy mocks the GetPolicy method.
func (m *MockKeyManager) GetPolicy(ctx context.Context, keyID string) (string, error) {
	args := m.Called(ctx, keyID)
	return args.String(0), args.Error(1)
}

// Tag mocks the Tag method.
func (m *MockKeyManager) Tag(ctx context.Context, keyID string, tags map[string]string) error {
	return m.Called(ctx, keyID, tags).Error(0)
}

// ListTags mocks the ListTags method.
func (m *MockKeyManager) ListTags(ctx context.Context, keyID string) (map[string]string, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// Close mocks the Close method.
func (m *MockKeyManager) Close() error {
	return m.Called().Error(0)
}
