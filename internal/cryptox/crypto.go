// Package cryptox holds the one-way digest used to store and compare
// credentials (emails and passwords) at rest.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of text.
//
// The digest is unsalted: the users collection is indexed by the email
// digest, so equal inputs must give equal outputs.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether plaintext hashes to digest. The comparison runs in
// constant time.
func Matches(plaintext, digest string) bool {
	candidate := Hash(plaintext)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1
}
