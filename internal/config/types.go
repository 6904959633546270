package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Ledger         LedgerConfig         `yaml:"ledger"`
	Assets         []AssetConfig        `yaml:"assets"`
	Channel        ChannelConfig        `yaml:"channel"`
	Facilitator    FacilitatorConfig    `yaml:"facilitator"`
	Resources      map[string]Resource  `yaml:"resources"`
	Replay         ReplayConfig         `yaml:"replay"`
	Receipts       ReceiptsConfig       `yaml:"receipts"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration shared by the origin-server and
// facilitator entrypoints.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	WriteTimeout        Duration `yaml:"write_timeout"`
	IdleTimeout         Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`
	AdminMetricsAPIKey  string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics endpoint (leave empty to disable protection)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// LedgerConfig holds Solana ledger access configuration shared by every
// verifier (transfer, channel) and the facilitator's RPC-bound endpoints.
type LedgerConfig struct {
	Network    string `yaml:"network"`     // e.g. "mainnet-beta", "devnet"
	RPCURL     string `yaml:"rpc_url"`
	Commitment string `yaml:"commitment"`  // processed | confirmed | finalized
}

// AssetConfig registers one SPL stablecoin accepted as payment. Mirrors the
// money.Asset registry but expressed in YAML-friendly terms.
type AssetConfig struct {
	Code     string `yaml:"code"`     // e.g. "USDC"
	Mint     string `yaml:"mint"`     // SPL mint address
	Decimals uint8  `yaml:"decimals"` // e.g. 6
}

// ChannelConfig configures the "channel" scheme: off-chain incremental claims
// settled against an on-chain settlement channel account.
type ChannelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProgramID string `yaml:"program_id"` // on-chain program owning channel accounts
}

// FacilitatorConfig configures the /verify, /settle and /supported façade.
type FacilitatorConfig struct {
	Address string `yaml:"address"` // defaults to server.address when empty
}

// Resource defines a single protected resource and its price, expressed in a
// stablecoin's atomic units.
type Resource struct {
	ResourceID    string `yaml:"resource_id"`
	Description   string `yaml:"description"`
	AtomicAmount  int64  `yaml:"atomic_amount"`
	Asset         string `yaml:"asset"`       // asset code, e.g. "USDC"
	Scheme        string `yaml:"scheme"`      // "exact" or "channel"; default "exact"
	MaxTimeoutSec int    `yaml:"max_timeout_sec"`
	PayToOwner    string `yaml:"pay_to_owner"` // wallet owning the destination token account
}

// ReplayConfig selects and tunes the replay-cache backend that de-duplicates
// exact-scheme settlement signatures. Channel claims never consult it.
type ReplayConfig struct {
	Backend         string             `yaml:"backend"` // "memory", "postgres", or "mongodb"
	TTL             Duration           `yaml:"ttl"`      // how long a consumed signature is remembered
	Memory          MemoryReplayConfig `yaml:"memory"`
	PostgresURL     string             `yaml:"postgres_url"`
	PostgresTable   string             `yaml:"postgres_table"`
	PostgresPool    PostgresPoolConfig `yaml:"postgres_pool"`
	MongoDBURL      string             `yaml:"mongodb_url"`
	MongoDBDatabase string             `yaml:"mongodb_database"`
	MongoCollection string             `yaml:"mongodb_collection"`
	PurgeInterval   Duration           `yaml:"purge_interval"` // not read; bootstrap sweeps durable backends every Memory.SweepEvery
}

// ReceiptsConfig configures the optional Mongo-backed payment receipt
// archive the facilitator writes to on every successful /settle call.
// Independent of the replay backend choice: an operator can run the
// replay cache on Postgres while still archiving receipts to Mongo.
type ReceiptsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	MongoDBURL      string `yaml:"mongodb_url"`
	MongoDBDatabase string `yaml:"mongodb_database"`
	MongoCollection string `yaml:"mongodb_collection"` // default "payment_receipts"
}

// MemoryReplayConfig tunes the in-process bounded LRU replay cache.
type MemoryReplayConfig struct {
	MaxEntries int      `yaml:"max_entries"`
	SweepEvery Duration `yaml:"sweep_every"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (0 keeps the database/sql default)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (0 keeps the database/sql default)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (0 keeps the database/sql default)
}

// RateLimitConfig holds rate limiting configuration.
// Provides multi-tier rate limiting to prevent spam while allowing legitimate use.
type RateLimitConfig struct {
	// Global rate limiting (across all requests)
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	// Per-payer rate limiting (identified by the X-Payer header or ?payer= query parameter)
	PerPayerEnabled bool     `yaml:"per_payer_enabled"`
	PerPayerLimit   int      `yaml:"per_payer_limit"`
	PerPayerWindow  Duration `yaml:"per_payer_window"`

	// Per-IP rate limiting (fallback when payer not identified)
	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
// Prevents cascading failures by failing fast when external services are degraded.
type CircuitBreakerConfig struct {
	Enabled       bool                 `yaml:"enabled"`        // Enable circuit breakers (default: true)
	LedgerRPC     BreakerServiceConfig `yaml:"ledger_rpc"`      // Solana RPC circuit breaker
	ReplayBackend BreakerServiceConfig `yaml:"replay_backend"`  // Replay cache durable-store circuit breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s ledger RPC, 15s replay backend)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
