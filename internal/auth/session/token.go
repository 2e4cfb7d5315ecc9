package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const defaultTokenBytes = 32

// newOpaqueToken mints a random cookie credential and its storage hash.
// The plain token is returned to be set as the cookie value; only the hash
// may be handed to a Store.
func newOpaqueToken(nBytes int) (plain, hash string, err error) {
	if nBytes <= 0 {
		nBytes = defaultTokenBytes
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("session: token entropy: %w", err)
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashTokenHex(plain), nil
}

// hashTokenHex returns the SHA-256 hex digest used as the storage key for a
// plain credential.
func hashTokenHex(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
