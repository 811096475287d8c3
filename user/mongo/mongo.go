// Package mongo provides a MongoDB-backed user store.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmcleod/storefront/user"
)

// DefaultCollection is the users collection name.
const DefaultCollection = "users"

// Store implements user.Store and user.Writer on a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

var (
	_ user.Store  = (*Store)(nil)
	_ user.Writer = (*Store)(nil)
)

// New returns a Store over db.collection.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{coll: db.Collection(collection)}
}

func (s *Store) FindByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", user.ErrStoreUnavailable, err)
	}
	return &u, nil
}

func (s *Store) Put(ctx context.Context, u *user.User) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: %w", user.ErrStoreUnavailable, err)
	}
	return nil
}
