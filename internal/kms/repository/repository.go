// Package repository persists the lifecycle metadata of keeper master keys.
//
// Only references and state are stored here: the key URI, lifecycle state, rotation
// flag, policy, tags and aliases. The key material itself stays in the remote keeper.
//
// PostgreSQL and MySQL implementations participate in the transaction carried by the
// context (database.GetTx). The in-memory implementation backs the "memory" driver.
package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// masterKeyColumns is the column list shared by every SELECT on master_keys.
const masterKeyColumns = `id, ref, key_uri, description, state, rotation_enabled, policy, tags, deletion_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMasterKey(row rowScanner) (*kmsDomain.MasterKey, error) {
	var (
		key          kmsDomain.MasterKey
		state        string
		tags         []byte
		deletionDate sql.NullTime
	)

	err := row.Scan(
		&key.ID,
		&key.Ref,
		&key.KeyURI,
		&key.Description,
		&state,
		&key.RotationEnabled,
		&key.Policy,
		&tags,
		&deletionDate,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.State = kmsDomain.KeyState(state)
	key.Enabled = key.State == kmsDomain.KeyStateEnabled
	if deletionDate.Valid {
		d := deletionDate.Time.UTC()
		key.DeletionDate = &d
	}

	key.Tags = map[string]string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &key.Tags); err != nil {
			return nil, err
		}
	}

	return &key, nil
}

// encodeTags returns the tags as a JSON string. A string rather than []byte keeps lib/pq
// from sending it as bytea.
func encodeTags(tags map[string]string) (string, error) {
	if tags == nil {
		tags = map[string]string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
