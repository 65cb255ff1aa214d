package domain

import (
	"github.com/awnumar/memguard"
)

// DataKey carries a freshly generated data key: the plaintext used for exactly one
// encryption and the wrapped form persisted next to the ciphertext.
//
// The plaintext is wiped by Destroy. Callers defer Destroy right after obtaining the key
// so the wipe runs on every exit path, including errors and panics.
type DataKey struct {
	plaintext []byte
	wrapped   []byte
}

// NewDataKey takes ownership of plaintext; the caller must not keep other references.
func NewDataKey(plaintext, wrapped []byte) *DataKey {
	return &DataKey{plaintext: plaintext, wrapped: wrapped}
}

// Plaintext returns the key material, or nil once destroyed.
func (d *DataKey) Plaintext() []byte {
	return d.plaintext
}

// Wrapped returns the data key encrypted under the master key.
func (d *DataKey) Wrapped() []byte {
	return d.wrapped
}

// Destroyed reports whether Destroy has run.
func (d *DataKey) Destroyed() bool {
	return d.plaintext == nil
}

// Destroy zeroes the plaintext key. Safe to call more than once.
func (d *DataKey) Destroy() {
	if d == nil || d.plaintext == nil {
		return
	}
	memguard.WipeBytes(d.plaintext)
	d.plaintext = nil
}

// Wipe zeroes an arbitrary buffer holding key material or decrypted secrets.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
