// Package domain defines the structured values the encoders seal: API keys, OAuth token
// pairs, emails and backup blobs. Each is serialized as JSON before encryption.
package domain

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/jellydator/validation"

	appValidation "github.com/allisson/fieldcrypt/internal/validation"
)

// Audit entity names recorded by each encoder.
const (
	EntityAPIKeys     = "api_keys"
	EntityOAuthTokens = "oauth_tokens"
	EntityUsers       = "users"
	EntityBackups     = "backups"
)

// APIKey is a third party API key with free form metadata.
type APIKey struct {
	Key      string         `json:"key"`
	Metadata map[string]any `json:"metadata,omitempty"`
	IssuedAt time.Time      `json:"issued_at"`
}

// Validate requires a non-blank key.
func (a *APIKey) Validate() error {
	err := validation.ValidateStruct(a,
		validation.Field(&a.Key, validation.Required, appValidation.NotBlank),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAPIKey, err)
	}
	return nil
}

// OAuthToken is an access token with its optional refresh token.
type OAuthToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
}

// Validate requires a non-blank access token.
func (o *OAuthToken) Validate() error {
	err := validation.ValidateStruct(o,
		validation.Field(&o.AccessToken, validation.Required, appValidation.NotBlank),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOAuthToken, err)
	}
	return nil
}

// Expired reports whether the token has an expiry at or before now.
func (o *OAuthToken) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Email is the sealed form of an email address.
type Email struct {
	Address string `json:"email"`
}

// NormalizeEmail trims and lowercases the address, matching the search hash
// normalization so the stored value and its hash agree.
func NormalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Validate checks the address format.
func (e *Email) Validate() error {
	err := validation.ValidateStruct(e,
		validation.Field(&e.Address, validation.Required, appValidation.Email),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}
	return nil
}
