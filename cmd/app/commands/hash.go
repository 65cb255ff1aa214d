package commands

import (
	"fmt"
	"io"
	"strings"
)

// SearchHasher computes the keyed search hash of a value.
type SearchHasher interface {
	Hash(value string) string
}

// RunHash prints the search hash of value, the string to match against a <field>_hash
// column. Values are trimmed and lowercased before hashing.
func RunHash(hasher SearchHasher, writer io.Writer, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value must not be blank")
	}
	_, _ = fmt.Fprintln(writer, hasher.Hash(value))
	return nil
}
