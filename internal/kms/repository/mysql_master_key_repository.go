package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// mysqlDuplicateEntry is the MySQL error number for duplicate key violations.
const mysqlDuplicateEntry = 1062

// MySQLMasterKeyRepository implements MasterKeyRepository for MySQL. Tags are
// stored as JSON text.
type MySQLMasterKeyRepository struct {
	db *sql.DB
}

// NewMySQLMasterKeyRepository creates a new MySQL master key repository.
func NewMySQLMasterKeyRepository(db *sql.DB) *MySQLMasterKeyRepository {
	return &MySQLMasterKeyRepository{db: db}
}

// Create inserts a new master key.
func (m *MySQLMasterKeyRepository) Create(ctx context.Context, key *kmsDomain.MasterKey) error {
	querier := database.GetTx(ctx, m.db)

	tags, err := encodeTags(key.Tags)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode tags")
	}

	query := `INSERT INTO master_keys (id, ref, key_uri, description, state, rotation_enabled, policy, tags, deletion_date, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.Ref,
		key.KeyURI,
		key.Description,
		string(key.State),
		key.RotationEnabled,
		key.Policy,
		tags,
		nullTime(key.DeletionDate),
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return kmsDomain.ErrMasterKeyAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create master key")
	}
	return nil
}

// Update overwrites the mutable fields of a master key.
func (m *MySQLMasterKeyRepository) Update(ctx context.Context, key *kmsDomain.MasterKey) error {
	querier := database.GetTx(ctx, m.db)

	tags, err := encodeTags(key.Tags)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode tags")
	}

	query := `UPDATE master_keys
			  SET description = ?,
				  state = ?,
				  rotation_enabled = ?,
				  policy = ?,
				  tags = ?,
				  deletion_date = ?,
				  updated_at = ?
			  WHERE id = ?`

	_, err = querier.ExecContext(
		ctx,
		query,
		key.Description,
		string(key.State),
		key.RotationEnabled,
		key.Policy,
		tags,
		nullTime(key.DeletionDate),
		key.UpdatedAt,
		key.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update master key")
	}
	// MySQL reports zero affected rows for unchanged values, so a missing key is not
	// detected here. Callers always load the key first.
	return nil
}

// Get returns the master key with the given id.
func (m *MySQLMasterKeyRepository) Get(ctx context.Context, id string) (*kmsDomain.MasterKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + masterKeyColumns + ` FROM master_keys WHERE id = ?`

	key, err := scanMasterKey(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kmsDomain.ErrMasterKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get master key")
	}
	return key, nil
}

// CreateAlias inserts a new alias.
func (m *MySQLMasterKeyRepository) CreateAlias(ctx context.Context, alias *kmsDomain.Alias) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO master_key_aliases (name, key_id, created_at) VALUES (?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, alias.Name, alias.KeyID, alias.CreatedAt)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return kmsDomain.ErrAliasAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create alias")
	}
	return nil
}

// GetAlias returns the alias with the given name.
func (m *MySQLMasterKeyRepository) GetAlias(ctx context.Context, name string) (*kmsDomain.Alias, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT name, key_id, created_at FROM master_key_aliases WHERE name = ?`

	var alias kmsDomain.Alias
	err := querier.QueryRowContext(ctx, query, name).Scan(&alias.Name, &alias.KeyID, &alias.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kmsDomain.ErrAliasNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get alias")
	}
	return &alias, nil
}

// ListAliases returns every alias ordered by name.
func (m *MySQLMasterKeyRepository) ListAliases(ctx context.Context) ([]*kmsDomain.Alias, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT name, key_id, created_at FROM master_key_aliases ORDER BY name ASC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list aliases")
	}
	defer func() {
		_ = rows.Close()
	}()

	aliases := make([]*kmsDomain.Alias, 0)
	for rows.Next() {
		var alias kmsDomain.Alias
		if err := rows.Scan(&alias.Name, &alias.KeyID, &alias.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan alias")
		}
		aliases = append(aliases, &alias)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list aliases")
	}
	return aliases, nil
}

func isMySQLUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
