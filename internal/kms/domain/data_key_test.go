package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataKey_Destroy(t *testing.T) {
	plaintext := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	backing := plaintext
	wrapped := []byte("wrapped")

	key := NewDataKey(plaintext, wrapped)
	assert.Equal(t, plaintext, key.Plaintext())
	assert.Equal(t, wrapped, key.Wrapped())
	assert.False(t, key.Destroyed())

	key.Destroy()

	assert.True(t, key.Destroyed())
	assert.Nil(t, key.Plaintext())
	assert.Equal(t, make([]byte, 8), backing)
	assert.Equal(t, []byte("wrapped"), key.Wrapped())

	// Idempotent
	key.Destroy()
	assert.True(t, key.Destroyed())
}

func TestDataKey_DestroyNil(t *testing.T) {
	var key *DataKey
	assert.NotPanics(t, func() { key.Destroy() })
}

func TestWipe(t *testing.T) {
	b := []byte("secret")
	Wipe(b)
	assert.Equal(t, make([]byte, 6), b)

	assert.NotPanics(t, func() { Wipe(nil) })
}
