package partyhub

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"
)

// Join-code alphabet: uppercase letters and digits with the visually
// ambiguous glyphs (0/O, 1/I) removed. 32 characters, so a random byte
// maps uniformly with a plain modulo.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLen      = 6
)

// GenerateCode produces one random join code. Uniqueness against live
// sessions is the caller's job (the manager retries on collision).
func GenerateCode() string {
	buf := make([]byte, codeLen)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[b%byte(len(codeAlphabet))]
	}
	return string(buf)
}

// NewGuestID mints an identity for players who join without one.
func NewGuestID() string {
	return "guest-" + uuid.NewString()
}
