// Package secrets produces webhook shared secrets and wraps gpg for
// passphrase-based symmetric encryption.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// SecretBytes is the entropy drawn for every generated secret.
const SecretBytes = 50

// Generator draws URL-safe secrets from a random source.
type Generator struct {
	rand io.Reader
	size int
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader, size: SecretBytes}
}

// NewGeneratorFrom is NewGenerator with an explicit source and size.
func NewGeneratorFrom(r io.Reader, size int) *Generator {
	return &Generator{rand: r, size: size}
}

// Generate returns size random bytes, base64url encoded without padding.
// A failing random source is returned as is.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EncodedLen is the length of a secret generated from n bytes.
func EncodedLen(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}
