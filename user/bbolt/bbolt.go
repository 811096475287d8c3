// Package bbolt provides a BBolt-backed user store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/storefront/user"
)

const bucketName = "users"

// Store implements user.Store and user.Writer backed by a BBolt database.
type Store struct {
	db     *bbolt.DB
	ownsDB bool
}

var (
	_ user.Store  = (*Store)(nil)
	_ user.Writer = (*Store)(nil)
)

// New returns a Store using db. The caller keeps ownership of db.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating users bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromFile opens a BBolt database at path and returns a Store that owns it.
func NewFromFile(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close closes the database if the Store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *Store) FindByID(_ context.Context, id string) (*user.User, error) {
	var u *user.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return nil
		}
		u = new(user.User)
		return json.Unmarshal(data, u)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", user.ErrStoreUnavailable, err)
	}
	if u == nil {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (s *Store) Put(_ context.Context, u *user.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(u.ID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", user.ErrStoreUnavailable, err)
	}
	return nil
}

// List returns every stored user ordered by id.
func (s *Store) List(_ context.Context) ([]user.User, error) {
	var users []user.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var u user.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", user.ErrStoreUnavailable, err)
	}
	return users, nil
}
