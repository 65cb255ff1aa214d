package service

import (
	"fmt"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// wrappedKeyVersion is the first byte of every keeper wrapped data key.
const wrappedKeyVersion byte = 0x01

// encodeWrappedKey prefixes the keeper ciphertext with the id of the master key that
// produced it: version (1) | len(keyID) (1) | keyID | ciphertext.
func encodeWrappedKey(keyID string, ciphertext []byte) ([]byte, error) {
	if len(keyID) == 0 || len(keyID) > 255 {
		return nil, fmt.Errorf("%w: key id length %d", kmsDomain.ErrInvalidKeyID, len(keyID))
	}

	out := make([]byte, 0, 2+len(keyID)+len(ciphertext))
	out = append(out, wrappedKeyVersion, byte(len(keyID)))
	out = append(out, keyID...)
	out = append(out, ciphertext...)
	return out, nil
}

// decodeWrappedKey splits a keeper wrapped data key into master key id and ciphertext.
func decodeWrappedKey(wrapped []byte) (string, []byte, error) {
	if len(wrapped) < 2 {
		return "", nil, fmt.Errorf("%w: wrapped key too short", kmsDomain.ErrUnwrapFailed)
	}
	if wrapped[0] != wrappedKeyVersion {
		return "", nil, fmt.Errorf("%w: unknown wrapped key version %d", kmsDomain.ErrUnwrapFailed, wrapped[0])
	}

	idLen := int(wrapped[1])
	if idLen == 0 || len(wrapped) < 2+idLen+1 {
		return "", nil, fmt.Errorf("%w: truncated wrapped key", kmsDomain.ErrUnwrapFailed)
	}

	keyID := string(wrapped[2 : 2+idLen])
	return keyID, wrapped[2+idLen:], nil
}
