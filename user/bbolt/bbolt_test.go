package bbolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/storefront/user"
	"github.com/jmcleod/storefront/user/usertest"
)

func TestBoltStore(t *testing.T) {
	s, err := NewFromFile(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	defer s.Close()
	usertest.RunStoreTests(t, s)
}

func TestBoltStoreSharedDB(t *testing.T) {
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "shared.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db)
	require.NoError(t, err)
	require.NoError(t, s.Close(), "Close must not close a borrowed db")

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &user.User{ID: "b", Email: "b@example.com"}))
	require.NoError(t, s.Put(ctx, &user.User{ID: "a", Email: "a@example.com"}))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
	assert.Equal(t, "b", users[1].ID)
}

func TestBoltStoreClosedIsUnavailable(t *testing.T) {
	s, err := NewFromFile(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.FindByID(context.Background(), "x")
	assert.ErrorIs(t, err, user.ErrStoreUnavailable)
}
