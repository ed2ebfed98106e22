// Package digest computes and compares the SHA-224 credential digest that
// guards the tunneling protocol.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Length is the fixed width, in ASCII characters, of a digest produced by
// Compute: two hex characters per SHA-224 byte.
const Length = sha256.Size224 * 2

// Compute returns the lowercase hex SHA-224 digest of password. The result
// is always exactly Length characters.
func Compute(password []byte) string {
	sum := sha256.Sum224(password)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether candidate matches want using a constant-time
// comparison over the fixed digest length, avoiding a timing side-channel
// on the byte at which the two strings first differ. A candidate of the
// wrong length is rejected without comparing any byte of want.
func Equal(candidate, want string) bool {
	if len(candidate) != Length || len(want) != Length {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(want)) == 1
}
