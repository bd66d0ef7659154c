package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewToken returns an opaque random identifier of 2*n hex characters.
func NewToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewID returns a 32-character opaque identifier for rooms, sessions and
// messages.
func NewID() (string, error) {
	return NewToken(16)
}

// NewEncryptionKey returns a 256-bit client-side symmetric key in hex. The
// coordinator stores and returns it but never uses it.
func NewEncryptionKey() (string, error) {
	return NewToken(32)
}
