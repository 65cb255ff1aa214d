package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/allisson/fieldcrypt/internal/database"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// pqUniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const pqUniqueViolation = "23505"

// PostgreSQLMasterKeyRepository implements MasterKeyRepository for PostgreSQL. Tags are
// stored as JSON text.
type PostgreSQLMasterKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLMasterKeyRepository creates a new PostgreSQL master key repository.
func NewPostgreSQLMasterKeyRepository(db *sql.DB) *PostgreSQLMasterKeyRepository {
	return &PostgreSQLMasterKeyRepository{db: db}
}

// Create inserts a new master key.
func (p *PostgreSQLMasterKeyRepository) Create(ctx context.Context, key *kmsDomain.MasterKey) error {
	querier := database.GetTx(ctx, p.db)

	tags, err := encodeTags(key.Tags)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode tags")
	}

	query := `INSERT INTO master_keys (id, ref, key_uri, description, state, rotation_enabled, policy, tags, deletion_date, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

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
		if isPostgreSQLUniqueViolation(err) {
			return kmsDomain.ErrMasterKeyAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create master key")
	}
	return nil
}

// Update overwrites the mutable fields of a master key.
func (p *PostgreSQLMasterKeyRepository) Update(ctx context.Context, key *kmsDomain.MasterKey) error {
	querier := database.GetTx(ctx, p.db)

	tags, err := encodeTags(key.Tags)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode tags")
	}

	query := `UPDATE master_keys
			  SET description = $1,
				  state = $2,
				  rotation_enabled = $3,
				  policy = $4,
				  tags = $5,
				  deletion_date = $6,
				  updated_at = $7
			  WHERE id = $8`

	result, err := querier.ExecContext(
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

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update master key")
	}
	if rows == 0 {
		return kmsDomain.ErrMasterKeyNotFound
	}
	return nil
}

// Get returns the master key with the given id.
func (p *PostgreSQLMasterKeyRepository) Get(ctx context.Context, id string) (*kmsDomain.MasterKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + masterKeyColumns + ` FROM master_keys WHERE id = $1`

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
func (p *PostgreSQLMasterKeyRepository) CreateAlias(ctx context.Context, alias *kmsDomain.Alias) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO master_key_aliases (name, key_id, created_at) VALUES ($1, $2, $3)`

	_, err := querier.ExecContext(ctx, query, alias.Name, alias.KeyID, alias.CreatedAt)
	if err != nil {
		if isPostgreSQLUniqueViolation(err) {
			return kmsDomain.ErrAliasAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create alias")
	}
	return nil
}

// GetAlias returns the alias with the given name.
func (p *PostgreSQLMasterKeyRepository) GetAlias(ctx context.Context, name string) (*kmsDomain.Alias, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT name, key_id, created_at FROM master_key_aliases WHERE name = $1`

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
func (p *PostgreSQLMasterKeyRepository) ListAliases(ctx context.Context) ([]*kmsDomain.Alias, error) {
	querier := database.GetTx(ctx, p.db)

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

func isPostgreSQLUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}
