package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s1, err := New(time.Hour)
	require.NoError(t, err)
	s2, err := New(0)
	require.NoError(t, err)

	assert.NotEmpty(t, s1.ID)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Len(t, s1.Secret, secretBytes)
	assert.False(t, bytes.Equal(s1.Secret, s2.Secret))
	assert.Empty(t, s1.UserID)
	assert.False(t, s1.IsLoggedIn)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s1.ExpiresAt, 5*time.Second)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), s2.ExpiresAt, 5*time.Second)
}

func TestExpired(t *testing.T) {
	s := &Session{ExpiresAt: time.Now().Add(-time.Second)}
	assert.True(t, s.Expired(time.Now()))
	assert.Zero(t, s.TTL())

	s.ExpiresAt = time.Now().Add(time.Minute)
	assert.False(t, s.Expired(time.Now()))
	assert.Positive(t, s.TTL())
}

func TestLogInRotatesSecret(t *testing.T) {
	s, err := New(time.Hour)
	require.NoError(t, err)
	before := append([]byte(nil), s.Secret...)

	require.NoError(t, s.LogIn("user-1"))
	assert.Equal(t, "user-1", s.UserID)
	assert.True(t, s.IsLoggedIn)
	assert.False(t, bytes.Equal(before, s.Secret))

	s.LogOut()
	assert.Empty(t, s.UserID)
	assert.False(t, s.IsLoggedIn)
}

func TestFlashesArePopped(t *testing.T) {
	s := &Session{}
	s.AddFlash("error", "invalid email")
	s.AddFlash("error", "invalid password")
	s.AddFlash("info", "welcome")

	assert.Equal(t, []string{"invalid email", "invalid password"}, s.Flashes("error"))
	assert.Nil(t, s.Flashes("error"))
	assert.Equal(t, []string{"welcome"}, s.Flashes("info"))
	assert.Nil(t, s.Flash)
}

func TestCloneIsDeep(t *testing.T) {
	s, err := New(time.Hour)
	require.NoError(t, err)
	s.AddFlash("info", "a")

	cp := s.Clone()
	cp.Secret[0] ^= 0xFF
	cp.Flash["info"][0] = "b"
	cp.UserID = "other"

	assert.NotEqual(t, cp.Secret[0], s.Secret[0])
	assert.Equal(t, "a", s.Flash["info"][0])
	assert.Empty(t, s.UserID)
	assert.Nil(t, (*Session)(nil).Clone())
}
