// Package memory provides a thread-safe in-memory user store.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/storefront/user"
)

// Store is an in-memory user.Store. Suitable for tests and demos.
type Store struct {
	mu    sync.RWMutex
	users map[string]user.User
}

var (
	_ user.Store  = (*Store)(nil)
	_ user.Writer = (*Store)(nil)
)

// New returns a Store seeded with users.
func New(users ...*user.User) *Store {
	s := &Store{users: make(map[string]user.User, len(users))}
	for _, u := range users {
		s.users[u.ID] = *u
	}
	return s
}

func (s *Store) FindByID(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (s *Store) Put(_ context.Context, u *user.User) error {
	s.mu.Lock()
	s.users[u.ID] = *u
	s.mu.Unlock()
	return nil
}

// Delete removes the user with id, if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.users, id)
	s.mu.Unlock()
}
