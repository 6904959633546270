package replay

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CedrosPay/server/internal/metrics"
)

// MongoCache is the second external-KV flavor of the replay cache: a
// unique index on signature plus a TTL index on ttl_expires_at lets Mongo
// itself auto-expire entries, so PurgeExpired here is a thin manual sweep
// (bootstrap's sweepLoop calls it on a timer) that removes expired entries
// without waiting for the background TTL monitor.
type MongoCache struct {
	client     *mongo.Client
	collection *mongo.Collection
	ownsClient bool
	metrics    *metrics.Metrics
}

// WithMetrics attaches a metrics collector, instrumenting every query this
// cache issues.
func (c *MongoCache) WithMetrics(m *metrics.Metrics) *MongoCache {
	c.metrics = m
	return c
}

type mongoEntry struct {
	Signature       string    `bson:"signature"`
	FirstConsumedAt time.Time `bson:"first_consumed_at"`
	TTLExpiresAt    time.Time `bson:"ttl_expires_at"`
	Resource        string    `bson:"resource"`
	AmountConsumed  int64     `bson:"amount_consumed"`
	Payer           string    `bson:"payer"`
	Status          string    `bson:"status"`
}

// NewMongoCache connects to MongoDB and ensures the indexes that make
// tryConsume atomic (unique on signature) and expiry automatic (TTL on
// ttl_expires_at) exist.
func NewMongoCache(ctx context.Context, connectionString, database, collectionName string) (*MongoCache, error) {
	if collectionName == "" {
		collectionName = "replay_entries"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("replay: connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("replay: ping mongodb: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)
	if err := ensureIndexes(connectCtx, collection); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}

	return &MongoCache{client: client, collection: collection, ownsClient: true}, nil
}

func ensureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "signature", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "ttl_expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("replay: create indexes: %w", err)
	}
	return nil
}

func (c *MongoCache) TryConsume(ctx context.Context, entry Entry) (Outcome, error) {
	defer metrics.MeasureReplayBackendQuery(c.metrics, "try_consume", "mongo")()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc := mongoEntry{
		Signature:       entry.Signature,
		FirstConsumedAt: entry.FirstConsumedAt,
		TTLExpiresAt:    entry.TTLExpiresAt,
		Resource:        entry.Resource,
		AmountConsumed:  entry.AmountConsumed,
		Payer:           entry.Payer,
		Status:          entry.Status,
	}

	_, err := c.collection.InsertOne(ctx, doc)
	if err == nil {
		return Outcome{FirstTime: true, Entry: entry}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return Outcome{}, fmt.Errorf("replay: insert: %w", err)
	}

	existing, peekErr := c.Peek(ctx, entry.Signature)
	if peekErr != nil {
		return Outcome{}, fmt.Errorf("replay: conflicting document vanished: %w", peekErr)
	}
	return Outcome{FirstTime: false, Entry: existing}, nil
}

func (c *MongoCache) Peek(ctx context.Context, signature string) (Entry, error) {
	defer metrics.MeasureReplayBackendQuery(c.metrics, "peek", "mongo")()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc mongoEntry
	err := c.collection.FindOne(ctx, bson.M{"signature": signature}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("replay: peek: %w", err)
	}

	return Entry{
		Signature:       doc.Signature,
		FirstConsumedAt: doc.FirstConsumedAt,
		TTLExpiresAt:    doc.TTLExpiresAt,
		Resource:        doc.Resource,
		AmountConsumed:  doc.AmountConsumed,
		Payer:           doc.Payer,
		Status:          doc.Status,
	}, nil
}

// PurgeExpired manually deletes entries past TTL; normally unnecessary
// since the TTL index above does this in the background.
func (c *MongoCache) PurgeExpired(ctx context.Context) (int, error) {
	defer metrics.MeasureReplayBackendQuery(c.metrics, "purge_expired", "mongo")()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := c.collection.DeleteMany(ctx, bson.M{"ttl_expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, fmt.Errorf("replay: purge expired: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ObserveReplayPurge(result.DeletedCount)
	}
	return int(result.DeletedCount), nil
}

func (c *MongoCache) Close() error {
	if !c.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}
