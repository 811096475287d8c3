// Package user defines the read side of the account model the request
// pipeline needs: lookup by id.
package user

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user has the requested id.
	ErrNotFound = errors.New("user not found")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("user store unavailable")
)

// User is the authenticated identity attached to a request.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	Name      string    `json:"name,omitempty" bson:"name,omitempty"`
	IsAdmin   bool      `json:"is_admin" bson:"is_admin"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Store looks users up by id.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

// Writer is implemented by stores that can also create or replace users,
// used by seeding and the CLI.
type Writer interface {
	Put(ctx context.Context, u *User) error
}
