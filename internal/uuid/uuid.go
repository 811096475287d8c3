// Package uuid wraps github.com/google/uuid for string identifiers.
package uuid

import "github.com/google/uuid"

// New returns a time-ordered (version 7) UUID string. It falls back to a
// random version 4 UUID if the v7 generator fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
