package domain

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ColumnNames lists the four columns that persist an encrypted field.
type ColumnNames struct {
	Ciphertext string
	IV         string
	AuthTag    string
	DataKey    string
	Hash       string
}

// ColumnNamesFor returns the column names for field: encrypted_<field>, <field>_iv,
// <field>_auth_tag, <field>_data_key and the companion <field>_hash.
func ColumnNamesFor(field string) (ColumnNames, error) {
	if !fieldNamePattern.MatchString(field) {
		return ColumnNames{}, fmt.Errorf("%w: %q", ErrInvalidFieldName, field)
	}
	return ColumnNames{
		Ciphertext: "encrypted_" + field,
		IV:         field + "_iv",
		AuthTag:    field + "_auth_tag",
		DataKey:    field + "_data_key",
		Hash:       field + "_hash",
	}, nil
}

// ToColumns projects the result onto the column group of field, base64 encoding each
// value.
func (r *EncryptionResult) ToColumns(field string) (map[string]string, error) {
	names, err := ColumnNamesFor(field)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return map[string]string{
		names.Ciphertext: base64.StdEncoding.EncodeToString(r.Ciphertext),
		names.IV:         base64.StdEncoding.EncodeToString(r.IV),
		names.AuthTag:    base64.StdEncoding.EncodeToString(r.AuthTag),
		names.DataKey:    base64.StdEncoding.EncodeToString(r.WrappedDataKey),
	}, nil
}

// FromColumns rebuilds a result from the column group of field. Every column must be
// present and valid base64.
func FromColumns(field string, columns map[string]string) (*EncryptionResult, error) {
	names, err := ColumnNamesFor(field)
	if err != nil {
		return nil, err
	}

	decode := func(column string) ([]byte, error) {
		value, ok := columns[column]
		if !ok {
			return nil, fmt.Errorf("%w: column %s is missing", ErrInvalidEncryptionResult, column)
		}
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("%w: column %s is not base64: %w", ErrInvalidEncryptionResult, column, err)
		}
		return b, nil
	}

	result := &EncryptionResult{}
	if result.Ciphertext, err = decode(names.Ciphertext); err != nil {
		return nil, err
	}
	if result.IV, err = decode(names.IV); err != nil {
		return nil, err
	}
	if result.AuthTag, err = decode(names.AuthTag); err != nil {
		return nil, err
	}
	if result.WrappedDataKey, err = decode(names.DataKey); err != nil {
		return nil, err
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
