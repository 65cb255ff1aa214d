package service

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewAESGCM(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		c, err := NewAESGCM(newTestKey(t))
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("InvalidKeySize", func(t *testing.T) {
		for _, size := range []int{0, 16, 24, 31, 33} {
			_, err := NewAESGCM(make([]byte, size))
			assert.Error(t, err, size)
		}
	})
}

func TestAESGCMCipher_SealOpen(t *testing.T) {
	c, err := NewAESGCM(newTestKey(t))
	require.NoError(t, err)
	aad := []byte("wrapped-data-key")

	t.Run("RoundTrip", func(t *testing.T) {
		plaintext := []byte("sk_live_abc123")

		ciphertext, iv, tag, err := c.Seal(plaintext, aad)
		require.NoError(t, err)
		assert.Len(t, iv, envelopeDomain.IVSize)
		assert.Len(t, tag, envelopeDomain.AuthTagSize)
		assert.Len(t, ciphertext, len(plaintext))
		assert.NotEqual(t, plaintext, ciphertext)

		decrypted, err := c.Open(ciphertext, iv, tag, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("EmptyPlaintext", func(t *testing.T) {
		ciphertext, iv, tag, err := c.Seal([]byte{}, aad)
		require.NoError(t, err)
		assert.Empty(t, ciphertext)

		decrypted, err := c.Open(ciphertext, iv, tag, aad)
		require.NoError(t, err)
		assert.Empty(t, decrypted)
	})

	t.Run("FreshIVEachCall", func(t *testing.T) {
		c1, iv1, _, err := c.Seal([]byte("same"), aad)
		require.NoError(t, err)
		c2, iv2, _, err := c.Seal([]byte("same"), aad)
		require.NoError(t, err)

		assert.NotEqual(t, iv1, iv2)
		assert.NotEqual(t, c1, c2)
	})

	t.Run("Tampering", func(t *testing.T) {
		ciphertext, iv, tag, err := c.Seal([]byte("secret value"), aad)
		require.NoError(t, err)

		flip := func(b []byte) []byte {
			out := bytes.Clone(b)
			out[0] ^= 0x01
			return out
		}

		tests := []struct {
			name       string
			ciphertext []byte
			iv         []byte
			tag        []byte
			aad        []byte
		}{
			{name: "ciphertext", ciphertext: flip(ciphertext), iv: iv, tag: tag, aad: aad},
			{name: "iv", ciphertext: ciphertext, iv: flip(iv), tag: tag, aad: aad},
			{name: "tag", ciphertext: ciphertext, iv: iv, tag: flip(tag), aad: aad},
			{name: "aad", ciphertext: ciphertext, iv: iv, tag: tag, aad: flip(aad)},
			{name: "short tag", ciphertext: ciphertext, iv: iv, tag: tag[:8], aad: aad},
			{name: "short iv", ciphertext: ciphertext, iv: iv[:12], tag: tag, aad: aad},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				plaintext, err := c.Open(tt.ciphertext, tt.iv, tt.tag, tt.aad)
				assert.ErrorIs(t, err, envelopeDomain.ErrIntegrityViolation)
				assert.Nil(t, plaintext)
			})
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		ciphertext, iv, tag, err := c.Seal([]byte("secret"), aad)
		require.NoError(t, err)

		other, err := NewAESGCM(newTestKey(t))
		require.NoError(t, err)

		_, err = other.Open(ciphertext, iv, tag, aad)
		assert.ErrorIs(t, err, envelopeDomain.ErrIntegrityViolation)
	})
}
