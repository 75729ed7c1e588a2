// Package id generates client-side identifiers for records the listing
// backend has not numbered yet.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// clientAlphabet avoids characters that need escaping in a URL path segment.
const (
	clientAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	clientSize     = 12
	separator      = "-"
)

// Generate creates a prefixed client id, e.g. "contact-V1StGXR8Z5jd".
// Client ids never leave the process; they key optimistic records until the
// backend assigns its own identifier.
func Generate(prefix string) (string, error) {
	raw, err := gonanoid.Generate(clientAlphabet, clientSize)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + separator + raw, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+separator) && len(id) == len(prefix)+len(separator)+clientSize
}
