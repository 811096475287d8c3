// Package redis provides a Redis-backed session.Store. Expiry is delegated
// to Redis key TTLs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/storefront/session"
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "storefront:session:"

// Store implements session.Store on top of a Redis client.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ session.Store = (*Store)(nil)

// New returns a Store using client. An empty prefix uses DefaultPrefix.
func New(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with a bounded PING.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	var sess session.Session
	if err := json.Unmarshal(val, &sess); err != nil || sess.ID != id {
		// Unreadable records are treated as absent and removed.
		_ = s.Delete(ctx, id)
		return nil, session.ErrNotFound
	}
	if sess.Expired(time.Now()) {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	ttl := sess.TTL()
	if ttl <= 0 {
		return s.Delete(ctx, sess.ID)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}
