// Package memory provides a thread-safe in-memory session.Store.
// Sessions are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/storefront/session"
)

// Store is a thread-safe in-memory session.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]*session.Session
	now  func() time.Time
}

var _ session.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string]*session.Session),
		now:  time.Now,
	}
}

func (s *Store) Load(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, session.ErrNotFound
	}
	if sess.Expired(s.now()) {
		s.mu.Lock()
		delete(s.data, id)
		s.mu.Unlock()
		return nil, session.ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	s.data[sess.ID] = sess.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
