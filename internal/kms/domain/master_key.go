// Package domain defines the core domain model for master key management.
//
// A master key lives in a remote key management service and never leaves it in
// plaintext. This package only models the references and lifecycle metadata this
// service keeps about those keys, plus the DataKey wrapper that carries the short-lived
// plaintext data keys they produce.
package domain

import (
	"strings"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/fieldcrypt/internal/errors"
)

// MasterKey describes a remote master key.
type MasterKey struct {
	ID              string            // Provider key id (UUID for keeper keys, AWS key id for aws)
	Ref             string            // Fully qualified reference (ARN for aws, keeper key URI scheme for keeper)
	KeyURI          string            // gocloud secrets URI used to reach the key (keeper backend only)
	Description     string            // Free form description
	Enabled         bool              // Whether cryptographic operations are allowed
	State           KeyState          // Lifecycle state
	RotationEnabled bool              // Whether automatic annual rotation is on
	Aliases         []string          // Alias names pointing at this key
	Policy          string            // Key policy document
	Tags            map[string]string // Resource tags
	DeletionDate    *time.Time        // Set while PendingDeletion
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Alias maps a friendly name onto a master key id.
type Alias struct {
	Name      string
	KeyID     string
	CreatedAt time.Time
}

// CreateKeyInput carries the parameters for creating a master key.
type CreateKeyInput struct {
	Description string
	// KeyURI is required by the keeper backend and ignored by aws.
	KeyURI string
	Tags   map[string]string
}

// EffectiveState returns the state of the key as of now. A key pending deletion whose
// deletion date has passed is reported as Deleted.
func (m *MasterKey) EffectiveState(now time.Time) KeyState {
	if m.State == KeyStatePendingDeletion && m.DeletionDate != nil && !now.Before(*m.DeletionDate) {
		return KeyStateDeleted
	}
	return m.State
}

// ScheduleDeletion moves an enabled key to PendingDeletion, returning the deletion date.
func (m *MasterKey) ScheduleDeletion(now time.Time, pendingDays int) (time.Time, error) {
	if err := ValidatePendingWindow(pendingDays); err != nil {
		return time.Time{}, err
	}
	if m.EffectiveState(now) != KeyStateEnabled {
		return time.Time{}, ErrKeyNotEnabled
	}

	deletionDate := now.Add(time.Duration(pendingDays) * 24 * time.Hour).UTC()
	m.State = KeyStatePendingDeletion
	m.Enabled = false
	m.DeletionDate = &deletionDate
	m.UpdatedAt = now.UTC()
	return deletionDate, nil
}

// CancelDeletion moves a key pending deletion back to Enabled.
func (m *MasterKey) CancelDeletion(now time.Time) error {
	if m.EffectiveState(now) != KeyStatePendingDeletion {
		return ErrKeyNotPendingDeletion
	}

	m.State = KeyStateEnabled
	m.Enabled = true
	m.DeletionDate = nil
	m.UpdatedAt = now.UTC()
	return nil
}

// ValidatePendingWindow checks the deletion waiting period. It runs before any remote
// call so an out of range value never reaches the key service.
func ValidatePendingWindow(pendingDays int) error {
	err := validation.Validate(pendingDays,
		validation.Required,
		validation.Min(MinPendingWindowDays),
		validation.Max(MaxPendingWindowDays),
	)
	if err != nil {
		return errors.Wrap(ErrInvalidPendingWindow, err.Error())
	}
	return nil
}

// ValidateKeyID rejects empty key references.
func ValidateKeyID(keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return ErrInvalidKeyID
	}
	return nil
}

// ValidateAliasName checks an alias name has the "alias/" prefix and a non-empty suffix.
func ValidateAliasName(name string) error {
	if !strings.HasPrefix(name, AliasPrefix) || len(name) == len(AliasPrefix) {
		return ErrInvalidAlias
	}
	if strings.ContainsAny(name, " \t\n") {
		return ErrInvalidAlias
	}
	return nil
}

// IsAlias reports whether the key reference is an alias name.
func IsAlias(ref string) bool {
	return strings.HasPrefix(ref, AliasPrefix)
}

// RedactedKeyURI returns the key URI with everything after the scheme hidden, so key
// material embedded in base64key:// URIs never reaches logs or terminals.
func (m *MasterKey) RedactedKeyURI() string {
	if m.KeyURI == "" {
		return ""
	}
	scheme, _, found := strings.Cut(m.KeyURI, "://")
	if !found {
		return "***"
	}
	return scheme + "://***"
}
