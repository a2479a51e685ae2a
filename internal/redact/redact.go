// Package redact replaces sensitive recorded values by their sha1 digest.
package redact

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/bugshot/bugshot-go/internal/shared"
)

// Fields is a case-insensitive set of field names or ids whose values must
// never leave the page in clear text.
type Fields map[string]bool

func NewFields(names ...string) Fields {
	if len(names) == 0 {
		return nil
	}
	f := Fields{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			f[strings.ToLower(n)] = true
		}
	}
	return f
}

// Match reports whether any of the given identifiers is a redacted field.
func (f Fields) Match(ids ...string) bool {
	for _, id := range ids {
		if id != "" && f[strings.ToLower(id)] {
			return true
		}
	}
	return false
}

// Value returns the redacted form of v.
func Value(v string) string {
	sha := sha1.Sum([]byte(v))
	return shared.RedactedPrefix + hex.EncodeToString(sha[:])
}
