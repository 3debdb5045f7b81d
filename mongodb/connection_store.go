// Package mongodb provides a MongoDB-backed ConnectionStore for
// deployments where several dashboard instances share one connection
// state.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
)

// ConnectionsCollection holds one document per platform.
const ConnectionsCollection = "platform_connections"

// Connect opens an instrumented MongoDB client and verifies the
// connection with a primary ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb primary: %w", err)
	}
	return client, nil
}

// ConnectionStore implements cache.ConnectionStore on a Mongo collection.
// Put performs an upsert keyed by platform, so writes stay last-write-wins
// and atomic per key.
type ConnectionStore struct {
	coll *mongo.Collection
}

func NewConnectionStore(db *mongo.Database) *ConnectionStore {
	return &ConnectionStore{coll: db.Collection(ConnectionsCollection)}
}

func (s *ConnectionStore) Get(ctx context.Context, platform domain.Platform) (domain.ConnectionRecord, error) {
	var record domain.ConnectionRecord
	err := s.coll.FindOne(ctx, bson.M{"platform": platform}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ConnectionRecord{}, cache.ErrConnectionNotFound
	}
	if err != nil {
		return domain.ConnectionRecord{}, fmt.Errorf("load connection record: %w", err)
	}
	return record, nil
}

func (s *ConnectionStore) Put(ctx context.Context, record domain.ConnectionRecord) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"platform": record.Platform},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store connection record: %w", err)
	}
	return nil
}
