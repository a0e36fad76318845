package cryptox

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// AccessCode returns a fresh student access code made of size random bytes,
// upper-case hex encoded. The result is already in normalised form.
func AccessCode(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// Wipe overwrites b with zeros. Use it on passwords read from the terminal.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
