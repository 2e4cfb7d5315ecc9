// Package codec implements the reversible transform applied to message text
// before persistence and reversed before delivery.
//
// The transform is a plain base64 encoding: publicly reversible, carrying no
// secret and no confidentiality guarantee. It exists to keep stored payloads
// shape-stable (single-token, binary-safe), nothing more. Do not present it
// as encryption.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidPayload is returned by Decode for payloads that are not valid
// output of Encode. Callers must drop such payloads, not crash on them.
var ErrInvalidPayload = errors.New("codec: invalid payload")

// Encode transforms raw message text into its stored payload form.
// For all valid UTF-8 text t, Decode(Encode(t)) == t.
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// Decode reverses Encode. It fails with ErrInvalidPayload when the payload is
// malformed (truncated, wrong alphabet) or does not decode to valid UTF-8.
func Decode(payload string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidPayload)
	}
	return string(b), nil
}
