// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"encoding/base64"

	validation "github.com/jellydator/validation"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	customValidation "github.com/allisson/fieldcrypt/internal/validation"
)

// EncryptRequest contains the parameters for encrypting a value.
type EncryptRequest struct {
	Plaintext string `json:"plaintext"`        // Base64-encoded plaintext, may be empty
	Entity    string `json:"entity,omitempty"` // Recorded in the audit trail
	Field     string `json:"field,omitempty"`  // When set, the response also carries column values
}

// Validate checks if the encrypt request is valid.
func (r *EncryptRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Plaintext, customValidation.Base64),
		validation.Field(&r.Entity, customValidation.FieldName),
		validation.Field(&r.Field, customValidation.FieldName),
	)
}

// EnvelopeRequest carries a stored ciphertext tuple for decrypt and rotate.
type EnvelopeRequest struct {
	Ciphertext     *string `json:"ciphertext"`
	IV             string  `json:"iv"`
	AuthTag        string  `json:"auth_tag"`
	WrappedDataKey string  `json:"wrapped_data_key"`
	Entity         string  `json:"entity,omitempty"`
}

// Validate checks if the envelope request is valid. Ciphertext must be present but may be
// the empty string when the original plaintext was empty.
func (r *EnvelopeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Ciphertext, validation.NotNil, customValidation.Base64),
		validation.Field(&r.IV, validation.Required, customValidation.Base64Size(envelopeDomain.IVSize)),
		validation.Field(&r.AuthTag, validation.Required, customValidation.Base64Size(envelopeDomain.AuthTagSize)),
		validation.Field(&r.WrappedDataKey, validation.Required, customValidation.Base64),
		validation.Field(&r.Entity, customValidation.FieldName),
	)
}

// ToDomain decodes the tuple. Call Validate first.
func (r *EnvelopeRequest) ToDomain() (*envelopeDomain.EncryptionResult, error) {
	var encoded string
	if r.Ciphertext != nil {
		encoded = *r.Ciphertext
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	iv, err := base64.StdEncoding.DecodeString(r.IV)
	if err != nil {
		return nil, err
	}
	authTag, err := base64.StdEncoding.DecodeString(r.AuthTag)
	if err != nil {
		return nil, err
	}
	wrapped, err := base64.StdEncoding.DecodeString(r.WrappedDataKey)
	if err != nil {
		return nil, err
	}
	return &envelopeDomain.EncryptionResult{
		Ciphertext:     ciphertext,
		IV:             iv,
		AuthTag:        authTag,
		WrappedDataKey: wrapped,
	}, nil
}

// HashRequest contains the value to derive a search hash for.
type HashRequest struct {
	Value string `json:"value"`
}

// Validate checks if the hash request is valid.
func (r *HashRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value, validation.Required, customValidation.NotBlank),
	)
}
