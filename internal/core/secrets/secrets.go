// Package secrets generates the random material written into the
// configuration record the first time a secret field is materialized.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// Generator produces random tokens with enough entropy for session keys and
// database passwords. Injected so tests can supply a deterministic one.
type Generator interface {
	Token(bytes int) (string, error)
}

// DefaultTokenBytes is the entropy used for generated secrets.
const DefaultTokenBytes = 32

// RandomGenerator is the production Generator backed by crypto/rand.
type RandomGenerator struct{}

// Token returns a URL-safe base64 token carrying n random bytes.
func (RandomGenerator) Token(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// placeholders are the template values that mark a secret as "not yet set".
// A field holding any of these (case-insensitive) gets a fresh value on
// materialization; anything else is operator-provided and never touched.
var placeholders = []string{
	"",
	"changeme",
	"change-me",
	"replace-me",
	"generate",
	"secret",
	"placeholder",
}

// IsPlaceholder reports whether a secret field still holds template filler.
func IsPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, p := range placeholders {
		if v == p {
			return true
		}
	}
	return false
}
