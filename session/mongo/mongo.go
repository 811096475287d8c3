// Package mongo provides a MongoDB-backed session.Store. Records live in a
// collection with a TTL index on expires_at so the server reaps them.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmcleod/storefront/session"
)

// DefaultCollection matches the collection name used by the storefront.
const DefaultCollection = "sessions"

// Store implements session.Store on a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

var _ session.Store = (*Store)(nil)

// New returns a Store over db.collection and ensures the TTL index exists.
func New(ctx context.Context, db *mongo.Database, collection string) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	coll := db.Collection(collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("creating session ttl index: %w", err)
	}
	return &Store{coll: coll}, nil
}

func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.coll.FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	var sess session.Session
	if err := bson.Unmarshal(raw, &sess); err != nil {
		// Unreadable records are treated as absent and removed.
		_ = s.Delete(ctx, id)
		return nil, session.ErrNotFound
	}
	// The TTL monitor runs about once a minute; filter stragglers here.
	if sess.Expired(time.Now()) {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": sess.ID}, sess, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}
