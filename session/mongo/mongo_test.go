package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmcleod/storefront/internal/uuid"
	"github.com/jmcleod/storefront/session"
	"github.com/jmcleod/storefront/session/sessiontest"
)

// TestMongoStore runs against a live server when STOREFRONT_TEST_MONGO_URI
// is set.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("STOREFRONT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("STOREFRONT_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("storefront_test_" + strings.ReplaceAll(uuid.New(), "-", ""))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s, err := New(ctx, db, "")
	require.NoError(t, err)
	sessiontest.RunStoreTests(t, s)

	t.Run("UnreadableRecordIsAbsent", func(t *testing.T) {
		_, err := db.Collection(DefaultCollection).InsertOne(ctx, bson.M{"_id": "garbled", "is_logged_in": bson.M{"x": 1}})
		require.NoError(t, err)

		_, err = s.Load(ctx, "garbled")
		assert.ErrorIs(t, err, session.ErrNotFound)
		n, err := db.Collection(DefaultCollection).CountDocuments(ctx, bson.M{"_id": "garbled"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
