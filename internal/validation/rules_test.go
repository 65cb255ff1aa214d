package validation

import (
	"encoding/base64"
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

func assertRule(t *testing.T, rule validation.Rule, valid, invalid []string) {
	t.Helper()
	for _, v := range valid {
		assert.NoError(t, rule.Validate(v), "expected %q to pass", v)
	}
	for _, v := range invalid {
		assert.Error(t, rule.Validate(v), "expected %q to fail", v)
	}
}

func TestEmail(t *testing.T) {
	assertRule(t, Email,
		[]string{"user@example.com", "first.last+tag@mail.example.co", ""},
		[]string{"userexample.com", "user@", "@example.com", "user@example", "user @example.com"},
	)
}

func TestNotBlank(t *testing.T) {
	assertRule(t, NotBlank,
		[]string{"a", " padded "},
		[]string{"   ", "\t\n"},
	)
}

func TestJSONDocument(t *testing.T) {
	assertRule(t, JSONDocument,
		[]string{`{"version":"2012-10-17"}`, `[1,2]`, ""},
		[]string{`{"version":`, "allow all"},
	)
}

func TestFieldName(t *testing.T) {
	assertRule(t, FieldName,
		[]string{"email", "api_key", "token2"},
		[]string{"Email", "2fa", "api-key", "drop table"},
	)
}

func TestBase64(t *testing.T) {
	assertRule(t, Base64,
		[]string{"c2VjcmV0", ""},
		[]string{"%%%", "c2VjcmV0-_", "c2VjcmV"},
	)
}

func TestBase64Size(t *testing.T) {
	sixteen := base64.StdEncoding.EncodeToString(make([]byte, 16))
	twelve := base64.StdEncoding.EncodeToString(make([]byte, 12))

	assertRule(t, Base64Size(16), []string{sixteen, ""}, []string{twelve, "%%%"})

	err := Base64Size(16).Validate(twelve)
	assert.EqualError(t, err, "must be base64 encoding of 16 bytes")
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(validation.Errors{"iv": validation.ErrRequired})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "iv: cannot be blank")
}
