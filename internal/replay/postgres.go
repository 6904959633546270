package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "postgres" sql.DB driver.
	_ "github.com/lib/pq"

	"github.com/CedrosPay/server/internal/metrics"
)

const defaultQueryTimeout = 5 * time.Second

// PostgresCache is the external-KV flavor of the replay cache (§4.4's
// "external key-value backend"): `INSERT ... ON CONFLICT DO NOTHING`
// stands in for `set-nx-ex`, with a `ttl_expires_at` column the periodic
// archival job (ArchiveExpired) consults instead of relying on the store
// to auto-expire rows.
type PostgresCache struct {
	db        *sql.DB
	ownsDB    bool
	tableName string
	metrics   *metrics.Metrics
}

// WithMetrics attaches a metrics collector, instrumenting every query this
// cache issues.
func (c *PostgresCache) WithMetrics(m *metrics.Metrics) *PostgresCache {
	c.metrics = m
	return c
}

// PostgresPoolConfig tunes the shared connection pool backing the cache.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresCache opens (or reuses) a PostgreSQL connection and prepares
// the signature table used as the replay-cache backing store.
func NewPostgresCache(ctx context.Context, connectionString, tableName string, pool PostgresPoolConfig) (*PostgresCache, error) {
	if tableName == "" {
		tableName = "replay_entries"
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("replay: open postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("replay: ping postgres: %w", err)
	}

	return &PostgresCache{db: db, ownsDB: true, tableName: tableName}, nil
}

func (c *PostgresCache) TryConsume(ctx context.Context, entry Entry) (Outcome, error) {
	defer metrics.MeasureReplayBackendQuery(c.metrics, "try_consume", "postgres")()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (signature, first_consumed_at, ttl_expires_at, resource, amount_consumed, payer, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signature) DO NOTHING
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query,
		entry.Signature, entry.FirstConsumedAt.UTC(), entry.TTLExpiresAt.UTC(),
		entry.Resource, entry.AmountConsumed, entry.Payer, entry.Status,
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("replay: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return Outcome{}, fmt.Errorf("replay: rows affected: %w", err)
	}
	if rows == 1 {
		return Outcome{FirstTime: true, Entry: entry}, nil
	}

	existing, err := c.Peek(ctx, entry.Signature)
	if err != nil {
		return Outcome{}, fmt.Errorf("replay: conflicting row vanished: %w", err)
	}
	return Outcome{FirstTime: false, Entry: existing}, nil
}

func (c *PostgresCache) Peek(ctx context.Context, signature string) (Entry, error) {
	defer metrics.MeasureReplayBackendQuery(c.metrics, "peek", "postgres")()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT signature, first_consumed_at, ttl_expires_at, resource, amount_consumed, payer, status
		FROM %s WHERE signature = $1
	`, c.tableName)

	var e Entry
	err := c.db.QueryRowContext(ctx, query, signature).Scan(
		&e.Signature, &e.FirstConsumedAt, &e.TTLExpiresAt, &e.Resource, &e.AmountConsumed, &e.Payer, &e.Status,
	)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("replay: peek: %w", err)
	}
	return e, nil
}

// PurgeExpired deletes every row whose TTL has already elapsed, by running
// ArchiveExpired with the current time as the cutoff.
func (c *PostgresCache) PurgeExpired(ctx context.Context) (int, error) {
	return c.ArchiveExpired(ctx, time.Now())
}

// ArchiveExpired deletes rows whose TTL elapsed before cutoff, bounding the
// table's growth (grounded on the teacher's ArchiveOldPayments).
func (c *PostgresCache) ArchiveExpired(ctx context.Context, cutoff time.Time) (int, error) {
	defer metrics.MeasureReplayBackendQuery(c.metrics, "archive_expired", "postgres")()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE ttl_expires_at < $1`, c.tableName)
	result, err := c.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("replay: archive expired: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("replay: rows affected: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ObserveReplayPurge(n)
	}
	return int(n), nil
}

func (c *PostgresCache) Close() error {
	if !c.ownsDB {
		return nil
	}
	return c.db.Close()
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}
