package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	"github.com/allisson/fieldcrypt/internal/kms/repository"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type keeperFixture struct {
	client *KeeperClient
	repo   *repository.MemoryMasterKeyRepository
	clock  *quartz.Mock
	key    *kmsDomain.MasterKey
}

// newKeeperFixture creates a client with one enabled localsecrets master key as default.
func newKeeperFixture(t *testing.T) *keeperFixture {
	t.Helper()

	clock := quartz.NewMock(t)
	clock.Set(testNow)
	repo := repository.NewMemoryMasterKeyRepository()

	admin := NewKeeperClient(repo, database.NewNoopTxManager(), NewKMSService(), "", discardLogger(),
		WithKeeperClock(clock))
	key, err := admin.CreateKey(context.Background(), kmsDomain.CreateKeyInput{
		Description: "primary",
		KeyURI:      generateLocalSecretsURI(t),
	})
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	client := NewKeeperClient(repo, database.NewNoopTxManager(), NewKMSService(), key.ID, discardLogger(),
		WithKeeperClock(clock), WithKeeperOperationTimeout(time.Second))
	t.Cleanup(func() { _ = client.Close() })

	return &keeperFixture{client: client, repo: repo, clock: clock, key: key}
}

func TestKeeperClient_GenerateAndUnwrap(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RoundTrip", func(t *testing.T) {
		f := newKeeperFixture(t)

		dataKey, err := f.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		assert.Len(t, dataKey.Plaintext(), kmsDomain.DataKeySize)
		assert.NotEmpty(t, dataKey.Wrapped())

		plaintext, err := f.client.UnwrapDataKey(ctx, dataKey.Wrapped())
		require.NoError(t, err)
		assert.Equal(t, dataKey.Plaintext(), plaintext)
	})

	t.Run("Success_FreshKeyEveryCall", func(t *testing.T) {
		f := newKeeperFixture(t)

		first, err := f.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer first.Destroy()
		second, err := f.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer second.Destroy()

		assert.NotEqual(t, first.Plaintext(), second.Plaintext())
		assert.NotEqual(t, first.Wrapped(), second.Wrapped())
	})

	t.Run("Success_DefaultKeyByAlias", func(t *testing.T) {
		f := newKeeperFixture(t)
		require.NoError(t, f.client.CreateAlias(ctx, f.key.ID, "alias/primary"))

		client := NewKeeperClient(f.repo, database.NewNoopTxManager(), NewKMSService(), "alias/primary",
			discardLogger(), WithKeeperClock(f.clock))
		defer func() { _ = client.Close() }()

		dataKey, err := client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		plaintext, err := f.client.UnwrapDataKey(ctx, dataKey.Wrapped())
		require.NoError(t, err)
		assert.Equal(t, dataKey.Plaintext(), plaintext)
	})

	t.Run("Error_NotConfigured", func(t *testing.T) {
		client := NewKeeperClient(repository.NewMemoryMasterKeyRepository(), database.NewNoopTxManager(),
			NewKMSService(), "", discardLogger())

		_, err := client.GenerateDataKey(ctx)
		assert.ErrorIs(t, err, kmsDomain.ErrKMSNotConfigured)
	})

	t.Run("Error_PendingDeletion", func(t *testing.T) {
		f := newKeeperFixture(t)
		dataKey, err := f.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		_, err = f.client.ScheduleDeletion(ctx, f.key.ID, 7)
		require.NoError(t, err)

		_, err = f.client.GenerateDataKey(ctx)
		assert.ErrorIs(t, err, kmsDomain.ErrKeyUnavailable)
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)

		_, err = f.client.UnwrapDataKey(ctx, dataKey.Wrapped())
		assert.ErrorIs(t, err, kmsDomain.ErrKeyUnavailable)

		// Cancelling restores both operations.
		require.NoError(t, f.client.CancelDeletion(ctx, f.key.ID))
		plaintext, err := f.client.UnwrapDataKey(ctx, dataKey.Wrapped())
		require.NoError(t, err)
		assert.Equal(t, dataKey.Plaintext(), plaintext)
	})

	t.Run("Error_DeletedAfterDeletionDate", func(t *testing.T) {
		f := newKeeperFixture(t)
		dataKey, err := f.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		deletionDate, err := f.client.ScheduleDeletion(ctx, f.key.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(7*24*time.Hour), deletionDate)

		f.clock.Set(deletionDate.Add(time.Second))

		_, err = f.client.UnwrapDataKey(ctx, dataKey.Wrapped())
		assert.ErrorIs(t, err, kmsDomain.ErrUnwrapFailed)
		assert.ErrorIs(t, err, apperrors.ErrUnprocessable)

		stored, err := f.repo.Get(ctx, f.key.ID)
		require.NoError(t, err)
		assert.Equal(t, kmsDomain.KeyStateDeleted, stored.State)

		// Deleted is terminal.
		err = f.client.CancelDeletion(ctx, f.key.ID)
		assert.ErrorIs(t, err, kmsDomain.ErrKeyNotPendingDeletion)
		_, err = f.client.GenerateDataKey(ctx)
		assert.ErrorIs(t, err, kmsDomain.ErrKeyUnavailable)
	})

	t.Run("Error_DifferentMasterKey", func(t *testing.T) {
		f := newKeeperFixture(t)
		other := newKeeperFixture(t)

		dataKey, err := other.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		_, err = f.client.UnwrapDataKey(ctx, dataKey.Wrapped())
		assert.ErrorIs(t, err, kmsDomain.ErrUnwrapFailed)
	})

	t.Run("Error_CorruptedWrappedKey", func(t *testing.T) {
		f := newKeeperFixture(t)
		dataKey, err := f.client.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		corrupted := append([]byte(nil), dataKey.Wrapped()...)
		corrupted[len(corrupted)-1] ^= 0xff

		_, err = f.client.UnwrapDataKey(ctx, corrupted)
		assert.ErrorIs(t, err, kmsDomain.ErrUnwrapFailed)

		_, err = f.client.UnwrapDataKey(ctx, []byte{0x02, 0x01, 'k', 'x'})
		assert.ErrorIs(t, err, kmsDomain.ErrUnwrapFailed)
	})
}

func TestKeeperClient_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateKey_RequiresURI", func(t *testing.T) {
		f := newKeeperFixture(t)
		_, err := f.client.CreateKey(ctx, kmsDomain.CreateKeyInput{})
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidKeyURI)

		_, err = f.client.CreateKey(ctx, kmsDomain.CreateKeyInput{KeyURI: "invalid://uri"})
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidKeyURI)
	})

	t.Run("DescribeKey", func(t *testing.T) {
		f := newKeeperFixture(t)
		require.NoError(t, f.client.CreateAlias(ctx, f.key.ID, "alias/primary"))

		key, err := f.client.DescribeKey(ctx, "alias/primary")
		require.NoError(t, err)
		assert.Equal(t, f.key.ID, key.ID)
		assert.Equal(t, "urn:fieldcrypt:key:"+f.key.ID, key.Ref)
		assert.Equal(t, kmsDomain.KeyStateEnabled, key.State)
		assert.True(t, key.Enabled)
		assert.Equal(t, []string{"alias/primary"}, key.Aliases)

		_, err = f.client.DescribeKey(ctx, "missing")
		assert.ErrorIs(t, err, kmsDomain.ErrMasterKeyNotFound)
		_, err = f.client.DescribeKey(ctx, "alias/missing")
		assert.ErrorIs(t, err, kmsDomain.ErrAliasNotFound)
	})

	t.Run("Rotation", func(t *testing.T) {
		f := newKeeperFixture(t)

		enabled, err := f.client.RotationStatus(ctx, f.key.ID)
		require.NoError(t, err)
		assert.False(t, enabled)

		require.NoError(t, f.client.EnableRotation(ctx, f.key.ID))

		enabled, err = f.client.RotationStatus(ctx, f.key.ID)
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("Aliases", func(t *testing.T) {
		f := newKeeperFixture(t)

		require.NoError(t, f.client.CreateAlias(ctx, f.key.ID, "alias/b"))
		require.NoError(t, f.client.CreateAlias(ctx, f.key.ID, "alias/a"))

		err := f.client.CreateAlias(ctx, f.key.ID, "alias/a")
		assert.ErrorIs(t, err, kmsDomain.ErrAliasAlreadyExists)

		err = f.client.CreateAlias(ctx, f.key.ID, "primary")
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidAlias)

		aliases, err := f.client.ListAliases(ctx)
		require.NoError(t, err)
		require.Len(t, aliases, 2)
		assert.Equal(t, "alias/a", aliases[0].Name)
		assert.Equal(t, f.key.ID, aliases[0].KeyID)
	})

	t.Run("ScheduleDeletion_InvalidWindowNeverTouchesRepository", func(t *testing.T) {
		repo := &mockMasterKeyRepository{}
		client := NewKeeperClient(repo, database.NewNoopTxManager(), NewKMSService(), "", discardLogger())

		for _, days := range []int{6, 31, 0} {
			_, err := client.ScheduleDeletion(ctx, "key-1", days)
			assert.ErrorIs(t, err, kmsDomain.ErrInvalidPendingWindow)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		}
		repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("ScheduleDeletion_Boundaries", func(t *testing.T) {
		for _, days := range []int{7, 30} {
			f := newKeeperFixture(t)
			deletionDate, err := f.client.ScheduleDeletion(ctx, f.key.ID, days)
			require.NoError(t, err)
			assert.Equal(t, testNow.Add(time.Duration(days)*24*time.Hour), deletionDate)

			key, err := f.client.DescribeKey(ctx, f.key.ID)
			require.NoError(t, err)
			assert.Equal(t, kmsDomain.KeyStatePendingDeletion, key.State)
		}
	})

	t.Run("CancelDeletion_NotPending", func(t *testing.T) {
		f := newKeeperFixture(t)
		err := f.client.CancelDeletion(ctx, f.key.ID)
		assert.ErrorIs(t, err, kmsDomain.ErrKeyNotPendingDeletion)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("Policy", func(t *testing.T) {
		f := newKeeperFixture(t)

		err := f.client.SetPolicy(ctx, f.key.ID, "not json")
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidPolicy)

		require.NoError(t, f.client.SetPolicy(ctx, f.key.ID, `{"statement":[]}`))
		policy, err := f.client.GetPolicy(ctx, f.key.ID)
		require.NoError(t, err)
		assert.Equal(t, `{"statement":[]}`, policy)
	})

	t.Run("Tags", func(t *testing.T) {
		f := newKeeperFixture(t)

		require.NoError(t, f.client.Tag(ctx, f.key.ID, map[string]string{"env": "prod", "team": "core"}))
		require.NoError(t, f.client.Tag(ctx, f.key.ID, map[string]string{"env": "staging"}))

		tags, err := f.client.ListTags(ctx, f.key.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"env": "staging", "team": "core"}, tags)
	})
}

func TestKeeperClient_KeeperErrors(t *testing.T) {
	ctx := context.Background()

	newClient := func(t *testing.T, keeper *mockKeeper) (*KeeperClient, []byte) {
		t.Helper()
		repo := repository.NewMemoryMasterKeyRepository()
		key := &kmsDomain.MasterKey{
			ID:      "key-1",
			KeyURI:  "mock://key-1",
			Enabled: true,
			State:   kmsDomain.KeyStateEnabled,
		}
		require.NoError(t, repo.Create(ctx, key))

		opener := &fakeKMSService{keeper: keeper}
		client := NewKeeperClient(repo, database.NewNoopTxManager(), opener, "key-1", discardLogger())

		wrapped, err := encodeWrappedKey("key-1", []byte("ciphertext"))
		require.NoError(t, err)
		return client, wrapped
	}

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantErr: kmsDomain.ErrKeyUnavailable},
		{name: "canceled", err: context.Canceled, wantErr: kmsDomain.ErrKeyUnavailable},
		{name: "unknown", err: assert.AnError, wantErr: kmsDomain.ErrUnwrapFailed},
	}

	for _, tt := range tests {
		t.Run("Unwrap_"+tt.name, func(t *testing.T) {
			keeper := &mockKeeper{}
			keeper.On("Decrypt", mock.Anything, []byte("ciphertext")).Return(nil, tt.err)
			keeper.On("Close").Return(nil).Maybe()

			client, wrapped := newClient(t, keeper)
			_, err := client.UnwrapDataKey(ctx, wrapped)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("Unwrap_WrongSize", func(t *testing.T) {
		keeper := &mockKeeper{}
		keeper.On("Decrypt", mock.Anything, []byte("ciphertext")).Return([]byte("short"), nil)

		client, wrapped := newClient(t, keeper)
		_, err := client.UnwrapDataKey(ctx, wrapped)
		assert.ErrorIs(t, err, kmsDomain.ErrUnwrapFailed)
	})

	t.Run("Generate_EncryptFailureIsUnavailable", func(t *testing.T) {
		keeper := &mockKeeper{}
		keeper.On("Encrypt", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		client, _ := newClient(t, keeper)
		_, err := client.GenerateDataKey(ctx)
		assert.ErrorIs(t, err, kmsDomain.ErrKeyUnavailable)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestRegisterKeeperKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_KeyIDUsableBySeparateRepositories", func(t *testing.T) {
		keyURI := generateLocalSecretsURI(t)

		// Two repositories stand in for two processes configured alike.
		encryptRepo := repository.NewMemoryMasterKeyRepository()
		_, err := RegisterKeeperKey(ctx, encryptRepo, "orders-key", keyURI, testNow)
		require.NoError(t, err)
		decryptRepo := repository.NewMemoryMasterKeyRepository()
		_, err = RegisterKeeperKey(ctx, decryptRepo, "orders-key", keyURI, testNow)
		require.NoError(t, err)

		encryptor := NewKeeperClient(encryptRepo, database.NewNoopTxManager(), NewKMSService(), "orders-key", discardLogger())
		t.Cleanup(func() { _ = encryptor.Close() })
		decryptor := NewKeeperClient(decryptRepo, database.NewNoopTxManager(), NewKMSService(), "orders-key", discardLogger())
		t.Cleanup(func() { _ = decryptor.Close() })

		dataKey, err := encryptor.GenerateDataKey(ctx)
		require.NoError(t, err)
		defer dataKey.Destroy()

		plaintext, err := decryptor.UnwrapDataKey(ctx, dataKey.Wrapped())
		require.NoError(t, err)
		assert.Equal(t, dataKey.Plaintext(), plaintext)
	})

	t.Run("Success_AliasGetsStableID", func(t *testing.T) {
		keyURI := generateLocalSecretsURI(t)

		first, err := RegisterKeeperKey(ctx, repository.NewMemoryMasterKeyRepository(), "alias/orders", keyURI, testNow)
		require.NoError(t, err)
		repo := repository.NewMemoryMasterKeyRepository()
		second, err := RegisterKeeperKey(ctx, repo, "alias/orders", keyURI, testNow)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, []string{"alias/orders"}, second.Aliases)
		assert.Equal(t, kmsDomain.KeyStateEnabled, second.State)

		alias, err := repo.GetAlias(ctx, "alias/orders")
		require.NoError(t, err)
		assert.Equal(t, second.ID, alias.KeyID)
	})

	t.Run("Error_InvalidInput", func(t *testing.T) {
		repo := repository.NewMemoryMasterKeyRepository()

		_, err := RegisterKeeperKey(ctx, repo, "", generateLocalSecretsURI(t), testNow)
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidKeyID)

		_, err = RegisterKeeperKey(ctx, repo, "orders-key", "", testNow)
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidKeyURI)

		_, err = RegisterKeeperKey(ctx, repo, "alias/", generateLocalSecretsURI(t), testNow)
		assert.ErrorIs(t, err, kmsDomain.ErrInvalidAlias)
	})
}

func TestKeeperClient_Close(t *testing.T) {
	keeper := &mockKeeper{}
	keeper.On("Close").Return(nil).Once()

	client := NewKeeperClient(repository.NewMemoryMasterKeyRepository(), database.NewNoopTxManager(),
		&fakeKMSService{keeper: keeper}, "", discardLogger())
	client.keepers["key-1"] = keeper

	require.NoError(t, client.Close())
	assert.Empty(t, client.keepers)
	keeper.AssertExpectations(t)
}

// fakeKMSService hands out the same keeper for every URI.
type fakeKMSService struct {
	mu     sync.Mutex
	keeper Keeper
	opened int
}

func (f *fakeKMSService) OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return f.keeper, nil
}

type mockKeeper struct {
	mock.Mock
}

func (m *mockKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKeeper) Close() error {
	args := m.Called()
	return args.Error(0)
}

type mockMasterKeyRepository struct {
	mock.Mock
}

func (m *mockMasterKeyRepository) Create(ctx context.Context, key *kmsDomain.MasterKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockMasterKeyRepository) Update(ctx context.Context, key *kmsDomain.MasterKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockMasterKeyRepository) Get(ctx context.Context, id string) (*kmsDomain.MasterKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kmsDomain.MasterKey), args.Error(1)
}

func (m *mockMasterKeyRepository) CreateAlias(ctx context.Context, alias *kmsDomain.Alias) error {
	return m.Called(ctx, alias).Error(0)
}

func (m *mockMasterKeyRepository) GetAlias(ctx context.Context, name string) (*kmsDomain.Alias, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kmsDomain.Alias), args.Error(1)
}

func (m *mockMasterKeyRepository) ListAliases(ctx context.Context) ([]*kmsDomain.Alias, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*kmsDomain.Alias), args.Error(1)
}
