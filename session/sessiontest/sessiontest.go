// Package sessiontest provides a conformance suite for session.Store
// implementations.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/session"
)

func newSession(t *testing.T, ttl time.Duration) *session.Session {
	t.Helper()
	s, err := session.New(ttl)
	require.NoError(t, err)
	return s
}

// RunStoreTests runs the common suite against store.
func RunStoreTests(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newSession(t, time.Hour)
		s.AddFlash("info", "hello")
		require.NoError(t, store.Save(ctx, s))

		got, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.Secret, got.Secret)
		assert.False(t, got.IsLoggedIn)
		assert.Equal(t, []string{"hello"}, got.Flash["info"])
		assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Second)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := store.Load(ctx, "no-such-session")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newSession(t, time.Hour)
		require.NoError(t, store.Save(ctx, s))
		require.NoError(t, store.Delete(ctx, s.ID))
		_, err := store.Load(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-existed"))
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newSession(t, time.Hour)
		require.NoError(t, store.Save(ctx, s))

		s2 := s.Clone()
		require.NoError(t, s2.LogIn("user-42"))
		require.NoError(t, store.Save(ctx, s2))

		got, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-42", got.UserID)
		assert.True(t, got.IsLoggedIn)
		assert.Equal(t, s2.Secret, got.Secret)
	})

	t.Run("ExpiredSession", func(t *testing.T) {
		s := newSession(t, time.Hour)
		s.ExpiresAt = time.Now().Add(-time.Second)
		// Stores with native TTL may refuse to keep an already expired record.
		_ = store.Save(ctx, s)
		_, err := store.Load(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("LoadReturnsCopy", func(t *testing.T) {
		s := newSession(t, time.Hour)
		require.NoError(t, store.Save(ctx, s))

		got, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		got.UserID = "mutated"
		got.Secret[0] ^= 0xFF

		again, err := store.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.Empty(t, again.UserID)
		assert.Equal(t, s.Secret, again.Secret)
	})

	t.Run("ConcurrentDistinctIDs", func(t *testing.T) {
		const n = 20
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			s := newSession(t, time.Hour)
			s.AddFlash("n", fmt.Sprint(i))
			ids[i] = s.ID
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Save(ctx, s))
			}()
		}
		wg.Wait()
		for i, id := range ids {
			got, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []string{fmt.Sprint(i)}, got.Flash["n"])
		}
	})
}
