// Package replay implements the consume-once signature cache (C4): the
// serialization point that stops a ledger signature from being accepted
// as payment proof more than once.
package replay

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Peek when no entry exists for a signature.
var ErrNotFound = errors.New("replay: entry not found")

// Entry is the metadata recorded against a consumed signature.
type Entry struct {
	Signature       string
	FirstConsumedAt time.Time
	TTLExpiresAt    time.Time
	Resource        string
	AmountConsumed  int64
	Payer           string
	Status          string // "" (normal) or "client-aborted"
}

// Outcome reports what tryConsume observed.
type Outcome struct {
	FirstTime bool
	Entry     Entry
}

// Cache is the replay-prevention primitive every verifier consults after
// its read-only validation steps and before returning success. Every
// backend must make tryConsume an atomic compare-and-set: two concurrent
// calls for the same signature must see exactly one FirstTime == true.
type Cache interface {
	// TryConsume atomically inserts entry if its signature is absent.
	// If the signature already exists, the outcome reports FirstTime ==
	// false and returns the existing entry. MemoryCache treats an entry
	// past its TTL as absent; the postgres and mongodb backends count an
	// expired row as existing until PurgeExpired (or Mongo's TTL monitor)
	// removes it.
	TryConsume(ctx context.Context, entry Entry) (Outcome, error)

	// Peek performs a read-only lookup, never mutating cache state.
	Peek(ctx context.Context, signature string) (Entry, error)

	// PurgeExpired removes entries whose TTL has elapsed. Backends that
	// auto-expire (TTL indexes, external KV expiry) may make this a no-op.
	PurgeExpired(ctx context.Context) (int, error)

	// Close releases background resources (sweepers, connections).
	Close() error
}
