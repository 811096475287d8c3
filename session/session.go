// Package session defines the server-side session record shared by every
// request that presents the same session token, and the Store contract used
// to persist it.
package session

import (
	"fmt"
	"time"

	"github.com/jmcleod/storefront/internal/util"
)

const (
	idBytes     = 32
	secretBytes = 32
)

// DefaultTTL is the lifetime given to new sessions when the caller does not
// supply one.
const DefaultTTL = 24 * time.Hour

// Session holds the mutable per-client state. It is not safe for concurrent
// mutation; each request works on its own copy returned by Store.Load.
type Session struct {
	ID         string              `json:"id" bson:"_id"`
	Secret     []byte              `json:"secret" bson:"secret"`
	UserID     string              `json:"user_id,omitempty" bson:"user_id,omitempty"`
	IsLoggedIn bool                `json:"is_logged_in" bson:"is_logged_in"`
	Flash      map[string][]string `json:"flash,omitempty" bson:"flash,omitempty"`
	CreatedAt  time.Time           `json:"created_at" bson:"created_at"`
	ExpiresAt  time.Time           `json:"expires_at" bson:"expires_at"`
}

// New creates an empty session with a fresh random id and secret.
func New(ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id, err := util.RandomToken(idBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generating id: %w", err)
	}
	secret, err := util.RandomBytes(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generating secret: %w", err)
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Expired reports whether the session is past its absolute expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// TTL returns the remaining lifetime, or zero if the session has expired.
func (s *Session) TTL() time.Duration {
	d := time.Until(s.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// RotateSecret replaces the session secret. Every token derived from the old
// secret stops validating.
func (s *Session) RotateSecret() error {
	secret, err := util.RandomBytes(secretBytes)
	if err != nil {
		return fmt.Errorf("session: rotating secret: %w", err)
	}
	util.WipeBytes(s.Secret)
	s.Secret = secret
	return nil
}

// LogIn binds the session to userID and rotates the secret so that tokens
// issued before authentication cannot be replayed afterwards.
func (s *Session) LogIn(userID string) error {
	if err := s.RotateSecret(); err != nil {
		return err
	}
	s.UserID = userID
	s.IsLoggedIn = true
	return nil
}

// LogOut clears the authenticated identity but keeps the session alive.
func (s *Session) LogOut() {
	s.UserID = ""
	s.IsLoggedIn = false
}

// AddFlash queues msg under key until it is read with Flashes.
func (s *Session) AddFlash(key, msg string) {
	if s.Flash == nil {
		s.Flash = make(map[string][]string)
	}
	s.Flash[key] = append(s.Flash[key], msg)
}

// Flashes returns and removes the messages queued under key.
func (s *Session) Flashes(key string) []string {
	msgs := s.Flash[key]
	delete(s.Flash, key)
	if len(s.Flash) == 0 {
		s.Flash = nil
	}
	return msgs
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Secret = util.CopyBytes(s.Secret)
	if s.Flash != nil {
		cp.Flash = make(map[string][]string, len(s.Flash))
		for k, v := range s.Flash {
			cp.Flash[k] = append([]string(nil), v...)
		}
	}
	return &cp
}
