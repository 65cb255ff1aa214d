package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
)

// HMACSearchHasher computes the <field>_hash companion column: a hex HMAC-SHA256 of the
// normalized value keyed by ENCRYPTION_SEARCH_SALT.
//
// Values are normalized with trim and lowercase, so "  Alice@Example.com " and
// "alice@example.com" share a hash.
//
// Changing the salt invalidates every stored hash. Lookups against rows hashed under the
// old salt silently stop matching until those rows are re-hashed.
type HMACSearchHasher struct {
	salt []byte
}

// NewHMACSearchHasher fails with ErrSearchSaltNotSet for an empty salt.
func NewHMACSearchHasher(salt string) (*HMACSearchHasher, error) {
	if salt == "" {
		return nil, envelopeDomain.ErrSearchSaltNotSet
	}
	return &HMACSearchHasher{salt: []byte(salt)}, nil
}

// Hash returns 64 lowercase hex characters.
func (h *HMACSearchHasher) Hash(value string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(NormalizeSearchValue(value)))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizeSearchValue trims surrounding whitespace and lowercases.
func NormalizeSearchValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
