package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Store.Load when no live session exists for
	// the id. Expired sessions are reported the same way.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures. Callers treat it as fatal
	// for the current request.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store persists sessions keyed by id. Implementations must be safe for
// concurrent use; concurrent Saves of the same id are last-write-wins.
type Store interface {
	// Load returns a copy of the session, or ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)
	// Save creates or replaces the session.
	Save(ctx context.Context, s *Session) error
	// Delete removes the session. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}
