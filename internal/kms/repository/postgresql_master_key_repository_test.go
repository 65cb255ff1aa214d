package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

var masterKeyRowColumns = []string{
	"id", "ref", "key_uri", "description", "state", "rotation_enabled",
	"policy", "tags", "deletion_date", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTestMasterKey() *kmsDomain.MasterKey {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &kmsDomain.MasterKey{
		ID:          "0190a1b2-0000-7000-8000-000000000001",
		Ref:         "urn:fieldcrypt:key:0190a1b2-0000-7000-8000-000000000001",
		KeyURI:      "base64key://c2VjcmV0",
		Description: "primary",
		Enabled:     true,
		State:       kmsDomain.KeyStateEnabled,
		Policy:      `{"version":"1"}`,
		Tags:        map[string]string{"env": "prod"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgreSQLMasterKeyRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)
		key := newTestMasterKey()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO master_keys")).
			WithArgs(
				key.ID, key.Ref, key.KeyURI, key.Description, "enabled", false,
				key.Policy, `{"env":"prod"}`, sqlmock.AnyArg(), key.CreatedAt, key.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.Create(ctx, key)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_Duplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO master_keys")).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, newTestMasterKey())
		assert.ErrorIs(t, err, kmsDomain.ErrMasterKeyAlreadyExists)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("Error_Database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO master_keys")).
			WillReturnError(assert.AnError)

		err := repo.Create(ctx, newTestMasterKey())
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "failed to create master key")
	})
}

func TestPostgreSQLMasterKeyRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)
		key := newTestMasterKey()
		deletionDate := key.CreatedAt.Add(7 * 24 * time.Hour)
		key.State = kmsDomain.KeyStatePendingDeletion
		key.DeletionDate = &deletionDate

		mock.ExpectExec(regexp.QuoteMeta("UPDATE master_keys")).
			WithArgs(
				key.Description, "pending_deletion", false, key.Policy, `{"env":"prod"}`,
				sqlmock.AnyArg(), key.UpdatedAt, key.ID,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(ctx, key)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE master_keys")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(ctx, newTestMasterKey())
		assert.ErrorIs(t, err, kmsDomain.ErrMasterKeyNotFound)
	})
}

func TestPostgreSQLMasterKeyRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)
		expected := newTestMasterKey()
		deletionDate := expected.CreatedAt.Add(30 * 24 * time.Hour)

		rows := sqlmock.NewRows(masterKeyRowColumns).AddRow(
			expected.ID, expected.Ref, expected.KeyURI, expected.Description, "pending_deletion", true,
			expected.Policy, []byte(`{"env":"prod"}`), deletionDate, expected.CreatedAt, expected.UpdatedAt,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM master_keys WHERE id = $1")).
			WithArgs(expected.ID).
			WillReturnRows(rows)

		key, err := repo.Get(ctx, expected.ID)
		require.NoError(t, err)
		assert.Equal(t, expected.ID, key.ID)
		assert.Equal(t, kmsDomain.KeyStatePendingDeletion, key.State)
		assert.False(t, key.Enabled)
		assert.True(t, key.RotationEnabled)
		assert.Equal(t, map[string]string{"env": "prod"}, key.Tags)
		require.NotNil(t, key.DeletionDate)
		assert.Equal(t, deletionDate, *key.DeletionDate)
	})

	t.Run("Success_NoDeletionDate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)
		expected := newTestMasterKey()

		rows := sqlmock.NewRows(masterKeyRowColumns).AddRow(
			expected.ID, expected.Ref, expected.KeyURI, expected.Description, "enabled", false,
			"", []byte(`{}`), nil, expected.CreatedAt, expected.UpdatedAt,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM master_keys WHERE id = $1")).
			WithArgs(expected.ID).
			WillReturnRows(rows)

		key, err := repo.Get(ctx, expected.ID)
		require.NoError(t, err)
		assert.True(t, key.Enabled)
		assert.Nil(t, key.DeletionDate)
		assert.Empty(t, key.Tags)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM master_keys WHERE id = $1")).
			WillReturnError(sql.ErrNoRows)

		key, err := repo.Get(ctx, "missing")
		assert.Nil(t, key)
		assert.ErrorIs(t, err, kmsDomain.ErrMasterKeyNotFound)
	})
}

func TestPostgreSQLMasterKeyRepository_Aliases(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CreateAlias_Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO master_key_aliases")).
			WithArgs("alias/primary", "key-1", createdAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.CreateAlias(ctx, &kmsDomain.Alias{Name: "alias/primary", KeyID: "key-1", CreatedAt: createdAt})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreateAlias_Duplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO master_key_aliases")).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.CreateAlias(ctx, &kmsDomain.Alias{Name: "alias/primary", KeyID: "key-1"})
		assert.ErrorIs(t, err, kmsDomain.ErrAliasAlreadyExists)
	})

	t.Run("GetAlias_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM master_key_aliases WHERE name = $1")).
			WithArgs("alias/missing").
			WillReturnError(sql.ErrNoRows)

		alias, err := repo.GetAlias(ctx, "alias/missing")
		assert.Nil(t, alias)
		assert.ErrorIs(t, err, kmsDomain.ErrAliasNotFound)
	})

	t.Run("ListAliases", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLMasterKeyRepository(db)

		rows := sqlmock.NewRows([]string{"name", "key_id", "created_at"}).
			AddRow("alias/a", "key-1", createdAt).
			AddRow("alias/b", "key-2", createdAt)
		mock.ExpectQuery(regexp.QuoteMeta("FROM master_key_aliases ORDER BY name ASC")).
			WillReturnRows(rows)

		aliases, err := repo.ListAliases(ctx)
		require.NoError(t, err)
		require.Len(t, aliases, 2)
		assert.Equal(t, "alias/a", aliases[0].Name)
		assert.Equal(t, "key-2", aliases[1].KeyID)
	})
}
