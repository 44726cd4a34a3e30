package user

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// MakeResetKey generates a random password reset key.
// The key only identifies the persisted reset ticket; it carries no state itself.
func MakeResetKey() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand is broken; nothing sane to do
	}
	return strings.ToLower(keyEncoding.EncodeToString(buf))
}
