// Package token produces unguessable opaque strings for session, activation
// and password-reset tokens.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Bytes is the amount of entropy per token. Hex encoding doubles the length.
const Bytes = 32

// New returns a hex-encoded token of Bytes random bytes.
func New() (string, error) {
	b := make([]byte, Bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Func generates tokens. Stores accept one so tests can force collisions.
type Func func() (string, error)
