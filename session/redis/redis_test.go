package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/session"
	"github.com/jmcleod/storefront/session/sessiontest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	sessiontest.RunStoreTests(t, New(client, ""))
}

func TestRedisStoreSetsTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := New(client, "test:")
	ctx := context.Background()

	sess, err := session.New(time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sess))

	assert.True(t, mr.Exists("test:"+sess.ID))
	ttl := mr.TTL("test:" + sess.ID)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	mr.FastForward(2 * time.Hour)
	_, err = s.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStoreUnreadableRecordIsAbsent(t *testing.T) {
	mr, client := newTestRedis(t)
	s := New(client, "test:")
	require.NoError(t, mr.Set("test:garbled", "{not json"))

	_, err := s.Load(context.Background(), "garbled")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NotErrorIs(t, err, session.ErrStoreUnavailable)
	assert.False(t, mr.Exists("test:garbled"), "unreadable record should be removed")

	// A record stored under another session's key is rejected the same way.
	require.NoError(t, mr.Set("test:other", `{"id":"someone-else"}`))
	_, err = s.Load(context.Background(), "other")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	s := New(client, "")
	mr.Close()

	_, err := s.Load(context.Background(), "whatever")
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)

	sess, err := session.New(time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Save(context.Background(), sess), session.ErrStoreUnavailable)
}

func TestDial(t *testing.T) {
	mr, _ := newTestRedis(t)
	client, err := Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = Dial(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}
