// Package bootstrap assembles the collaborators shared by the
// origin-server and facilitator entrypoints from a loaded Config: logger,
// metrics, circuit breaker, replay cache, ledger client and verifiers.
// Each cmd/ binary builds one of these and wires only the pieces it needs
// into its own router.
package bootstrap

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/server/internal/circuitbreaker"
	"github.com/CedrosPay/server/internal/config"
	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/internal/metrics"
	"github.com/CedrosPay/server/internal/money"
	"github.com/CedrosPay/server/internal/receipts"
	"github.com/CedrosPay/server/internal/replay"
	"github.com/CedrosPay/server/pkg/x402/solana"
)

// Runtime holds the collaborators built from a Config, ready to be wired
// into either entrypoint's router.
type Runtime struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Breaker  *circuitbreaker.Manager
	Replay   replay.Cache
	Ledger   solana.Ledger
	Exact    *solana.TransferVerifier
	Channel  *solana.ChannelVerifier
	Receipts *receipts.Archive

	closers []func() error
}

// New builds every collaborator the configuration describes. Callers must
// call Close when done to release the replay backend, receipt archive and
// any other owned resources.
func New(ctx context.Context, cfg *config.Config, serviceName string) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	rt.Logger = logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     serviceName,
		Environment: cfg.Logging.Environment,
	})

	rt.Metrics = metrics.New(nil)

	if cfg.CircuitBreaker.Enabled {
		rt.Breaker = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)
	}

	for _, asset := range cfg.Assets {
		if err := money.RegisterAsset(money.Asset{Code: asset.Code, Decimals: asset.Decimals, Mint: asset.Mint}); err != nil {
			return nil, fmt.Errorf("bootstrap: register asset %q: %w", asset.Code, err)
		}
	}

	replayCache, backend, err := newReplayCache(ctx, cfg, rt.Metrics)
	if err != nil {
		return nil, err
	}
	rt.Replay = replayCache
	rt.closers = append(rt.closers, replayCache.Close)

	// MemoryCache runs its own internal sweep goroutine; the durable
	// backends (postgres, mongodb) don't self-sweep, so bootstrap owns a
	// periodic PurgeExpired loop for them, stopped alongside the rest of
	// the runtime's resources.
	if backend != "memory" {
		stop := make(chan struct{})
		done := make(chan struct{})
		go sweepLoop(rt.Replay, cfg.Replay.Memory.SweepEvery.Duration, stop, done)
		rt.closers = append(rt.closers, func() error {
			close(stop)
			<-done
			return nil
		})
	}

	ledger, err := solana.NewRPCClient(cfg.Ledger.RPCURL, rt.Breaker)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build ledger client: %w", err)
	}
	rt.Ledger = ledger

	rt.Exact = solana.NewTransferVerifier(rt.Ledger, rt.Replay, cfg.Ledger.Network).WithMetrics(rt.Metrics)

	if cfg.Channel.Enabled {
		programID, err := solanago.PublicKeyFromBase58(cfg.Channel.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: invalid channel.program_id: %w", err)
		}
		rt.Channel = solana.NewChannelVerifier(rt.Ledger, deriveChannelAddress(programID), cfg.Ledger.Network).WithMetrics(rt.Metrics)
	}

	if cfg.Receipts.Enabled {
		archive, err := receipts.NewArchive(ctx, cfg.Receipts.MongoDBURL, cfg.Receipts.MongoDBDatabase, cfg.Receipts.MongoCollection)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: receipt archive: %w", err)
		}
		rt.Receipts = archive.WithMetrics(rt.Metrics)
		rt.closers = append(rt.closers, archive.Close)
	}

	return rt, nil
}

// Close releases every owned collaborator, logging (not failing on) the
// first error from each so a misbehaving backend doesn't block shutdown
// of the rest.
func (rt *Runtime) Close() {
	for _, closeFn := range rt.closers {
		if err := closeFn(); err != nil {
			rt.Logger.Warn().Err(err).Msg("bootstrap.close_failed")
		}
	}
}

func newReplayCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (replay.Cache, string, error) {
	switch cfg.Replay.Backend {
	case "postgres":
		pool := cfg.Replay.PostgresPool
		cache, err := replay.NewPostgresCache(ctx, cfg.Replay.PostgresURL, cfg.Replay.PostgresTable, replay.PostgresPoolConfig{
			MaxOpenConns:    pool.MaxOpenConns,
			MaxIdleConns:    pool.MaxIdleConns,
			ConnMaxLifetime: pool.ConnMaxLifetime.Duration,
		})
		if err != nil {
			return nil, "", fmt.Errorf("bootstrap: postgres replay cache: %w", err)
		}
		return cache.WithMetrics(m), "postgres", nil
	case "mongodb":
		cache, err := replay.NewMongoCache(ctx, cfg.Replay.MongoDBURL, cfg.Replay.MongoDBDatabase, cfg.Replay.MongoCollection)
		if err != nil {
			return nil, "", fmt.Errorf("bootstrap: mongodb replay cache: %w", err)
		}
		return cache.WithMetrics(m), "mongodb", nil
	default:
		return replay.NewMemoryCache(cfg.Replay.Memory.MaxEntries, cfg.Replay.Memory.SweepEvery.Duration), "memory", nil
	}
}

// sweepLoop periodically purges expired replay entries from a durable
// backend that doesn't already sweep itself (mirrors MemoryCache.sweepLoop).
func sweepLoop(cache replay.Cache, period time.Duration, stop, done chan struct{}) {
	defer close(done)
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, _ = cache.PurgeExpired(context.Background())
		}
	}
}

// deriveChannelAddress maps a claim's channelId to its program-derived
// settlement-channel account, seeded the way the channel program itself
// derives it: ["channel", channelId bytes] under programID.
func deriveChannelAddress(programID solanago.PublicKey) func(channelID string) (string, error) {
	return func(channelID string) (string, error) {
		idBytes, err := decodeChannelID(channelID)
		if err != nil {
			return "", err
		}
		address, _, err := solanago.FindProgramAddress([][]byte{[]byte("channel"), idBytes}, programID)
		if err != nil {
			return "", fmt.Errorf("bootstrap: derive channel address: %w", err)
		}
		return address.String(), nil
	}
}

// decodeChannelID mirrors the channel verifier's own lenient decode: a
// claim's channelId travels as base58 or base64, never raw bytes. Base58
// is tried first because every base58 string is also valid base64.
func decodeChannelID(s string) ([]byte, error) {
	if data, err := base58.Decode(s); err == nil {
		return data, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("bootstrap: cannot decode channel id %q", s)
}
