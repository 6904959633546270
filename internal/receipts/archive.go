// Package receipts persists every payment receipt the facilitator issues,
// so operators can audit or dispute a settlement after the fact without
// replaying ledger RPC calls.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CedrosPay/server/internal/metrics"
	"github.com/CedrosPay/server/pkg/x402"
)

// ErrNotFound is returned when no receipt is archived for a signature.
var ErrNotFound = errors.New("receipts: not found")

const defaultQueryTimeout = 5 * time.Second

// Archive is the Mongo-backed receipt store. Unlike the replay cache, it is
// purely additive record-keeping: nothing reads it on the verification hot
// path, only operator tooling and dispute lookups.
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
	ownsClient bool
	metrics    *metrics.Metrics
}

// WithMetrics attaches a metrics collector, instrumenting every query this
// archive issues.
func (a *Archive) WithMetrics(m *metrics.Metrics) *Archive {
	a.metrics = m
	return a
}

type receiptDoc struct {
	Signature string  `bson:"signature"`
	Network   string  `bson:"network"`
	Resource  string  `bson:"resource"`
	Payer     string  `bson:"payer"`
	Amount    int64   `bson:"amount"`
	Timestamp int64   `bson:"timestamp"`
	Status    string  `bson:"status"`
	BlockTime *int64  `bson:"block_time,omitempty"`
	Slot      *uint64 `bson:"slot,omitempty"`
}

// NewArchive connects to MongoDB and ensures the unique index on signature
// that makes Record idempotent under concurrent retries.
func NewArchive(ctx context.Context, connectionString, database, collectionName string) (*Archive, error) {
	if collectionName == "" {
		collectionName = "payment_receipts"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("receipts: connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("receipts: ping mongodb: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)
	_, err = collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "signature", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("receipts: create index: %w", err)
	}

	return &Archive{client: client, collection: collection, ownsClient: true}, nil
}

// Record archives a receipt for operator auditing. Archiving the same
// signature twice (a retried /settle call, for instance) is a no-op rather
// than an error, since the receipt content for a given signature never
// changes.
func (a *Archive) Record(ctx context.Context, receipt x402.PaymentReceipt, resource, payer string) error {
	defer metrics.MeasureReplayBackendQuery(a.metrics, "record_receipt", "mongo")()

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	doc := receiptDoc{
		Signature: receipt.Signature,
		Network:   receipt.Network,
		Resource:  resource,
		Payer:     payer,
		Amount:    receipt.Amount,
		Timestamp: receipt.Timestamp,
		Status:    receipt.Status,
		BlockTime: receipt.BlockTime,
		Slot:      receipt.Slot,
	}

	_, err := a.collection.InsertOne(ctx, doc)
	if err == nil || mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return fmt.Errorf("receipts: insert: %w", err)
}

// Get retrieves an archived receipt by settlement signature, for dispute
// lookups and operator support tooling.
func (a *Archive) Get(ctx context.Context, signature string) (x402.PaymentReceipt, error) {
	defer metrics.MeasureReplayBackendQuery(a.metrics, "get_receipt", "mongo")()

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var doc receiptDoc
	err := a.collection.FindOne(ctx, bson.M{"signature": signature}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return x402.PaymentReceipt{}, ErrNotFound
	}
	if err != nil {
		return x402.PaymentReceipt{}, fmt.Errorf("receipts: get: %w", err)
	}

	return x402.PaymentReceipt{
		Signature: doc.Signature,
		Network:   doc.Network,
		Amount:    doc.Amount,
		Timestamp: doc.Timestamp,
		Status:    doc.Status,
		BlockTime: doc.BlockTime,
		Slot:      doc.Slot,
	}, nil
}

func (a *Archive) Close() error {
	if !a.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}
