package util

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DefaultKeyLength is the derived length used when callers pass 0.
const DefaultKeyLength = 32

// DeriveKey expands secret into length bytes with HKDF-SHA256. The same
// inputs always give the same output; changing salt or info gives an
// unrelated one.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("hkdf: empty secret")
	}
	if length == 0 {
		length = DefaultKeyLength
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}
