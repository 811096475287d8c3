// Package usertest provides a conformance suite for user stores.
package usertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/internal/uuid"
	"github.com/jmcleod/storefront/user"
)

// ReadWriter is a user store that supports seeding.
type ReadWriter interface {
	user.Store
	user.Writer
}

// RunStoreTests runs the common suite against store.
func RunStoreTests(t *testing.T, store ReadWriter) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutAndFind", func(t *testing.T) {
		u := &user.User{
			ID:        uuid.New(),
			Email:     "ada@example.com",
			Name:      "Ada",
			IsAdmin:   true,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, store.Put(ctx, u))

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Equal(t, "Ada", got.Name)
		assert.True(t, got.IsAdmin)
		assert.True(t, u.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("FindMissing", func(t *testing.T) {
		_, err := store.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("Replace", func(t *testing.T) {
		u := &user.User{ID: uuid.New(), Email: "old@example.com"}
		require.NoError(t, store.Put(ctx, u))
		require.NoError(t, store.Put(ctx, &user.User{ID: u.ID, Email: "new@example.com"}))

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", got.Email)
	})

	t.Run("FindReturnsCopy", func(t *testing.T) {
		u := &user.User{ID: uuid.New(), Email: "copy@example.com"}
		require.NoError(t, store.Put(ctx, u))
		u.Email = "changed-after-put@example.com"

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "copy@example.com", got.Email)
		got.Email = "changed-after-find@example.com"

		again, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "copy@example.com", again.Email)
	})
}
