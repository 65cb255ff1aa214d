// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	fieldNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Email validates email format using regex
var Email = validation.NewStringRuleWithError(
	func(s string) bool {
		return emailRegex.MatchString(s)
	},
	validation.NewError("validation_email_format", "must be a valid email address"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// JSONDocument validates that a string is a well-formed JSON document.
var JSONDocument = validation.NewStringRuleWithError(
	func(s string) bool {
		return json.Valid([]byte(s))
	},
	validation.NewError("validation_json_document", "must be a valid json document"),
)

// FieldName validates a column group field name: a lowercase identifier.
var FieldName = validation.NewStringRuleWithError(
	fieldNameRegex.MatchString,
	validation.NewError("validation_field_name", "must be a lowercase identifier"),
)
