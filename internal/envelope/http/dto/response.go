package dto

import (
	"encoding/base64"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
)

// EncryptionResultResponse is a ciphertext tuple with every part base64-encoded.
type EncryptionResultResponse struct {
	Ciphertext     string            `json:"ciphertext"`
	IV             string            `json:"iv"`
	AuthTag        string            `json:"auth_tag"`
	WrappedDataKey string            `json:"wrapped_data_key"`
	Columns        map[string]string `json:"columns,omitempty"`
}

// MapEncryptionResultToResponse converts a domain result to an API response.
func MapEncryptionResultToResponse(result *envelopeDomain.EncryptionResult) EncryptionResultResponse {
	return EncryptionResultResponse{
		Ciphertext:     base64.StdEncoding.EncodeToString(result.Ciphertext),
		IV:             base64.StdEncoding.EncodeToString(result.IV),
		AuthTag:        base64.StdEncoding.EncodeToString(result.AuthTag),
		WrappedDataKey: base64.StdEncoding.EncodeToString(result.WrappedDataKey),
	}
}

// DecryptResponse contains the recovered plaintext, base64-encoded by encoding/json.
// SECURITY: The Plaintext field contains sensitive data and should be transmitted over HTTPS.
type DecryptResponse struct {
	Plaintext []byte `json:"plaintext"`
}

// HashResponse contains a search hash.
type HashResponse struct {
	Hash string `json:"hash"`
}
