package validation

import (
	"encoding/base64"
	"fmt"

	validation "github.com/jellydator/validation"
)

// Base64 accepts standard padded base64. Empty strings pass; combine with Required.
var Base64 = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := base64.StdEncoding.DecodeString(s)
		return err == nil
	},
	validation.NewError("validation_base64", "must be valid base64-encoded data"),
)

// Base64Size accepts standard base64 that decodes to exactly size bytes, such as a
// nonce or an authentication tag.
func Base64Size(size int) validation.StringRule {
	return validation.NewStringRuleWithError(
		func(s string) bool {
			b, err := base64.StdEncoding.DecodeString(s)
			return err == nil && len(b) == size
		},
		validation.NewError(
			"validation_base64_size",
			fmt.Sprintf("must be base64 encoding of %d bytes", size),
		),
	)
}
