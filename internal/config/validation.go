package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CedrosPay/server/internal/money"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Facilitator.Address == "" {
		c.Facilitator.Address = c.Server.Address
	}

	if c.Ledger.Commitment == "" {
		c.Ledger.Commitment = "confirmed"
	}
	switch strings.ToLower(c.Ledger.Commitment) {
	case "processed", "confirmed", "finalized", "finalised":
	default:
		c.Ledger.Commitment = "confirmed"
	}

	if c.Replay.Backend == "" {
		c.Replay.Backend = "memory"
	}
	if c.Replay.TTL.Duration <= 0 {
		c.Replay.TTL = Duration{Duration: 10 * time.Minute}
	}
	if c.Replay.Memory.MaxEntries <= 0 {
		c.Replay.Memory.MaxEntries = 100_000
	}
	if c.Replay.Memory.SweepEvery.Duration <= 0 {
		c.Replay.Memory.SweepEvery = Duration{Duration: time.Minute}
	}
	if c.Replay.PurgeInterval.Duration <= 0 {
		c.Replay.PurgeInterval = Duration{Duration: 24 * time.Hour}
	}
	if c.Receipts.MongoCollection == "" {
		c.Receipts.MongoCollection = "payment_receipts"
	}

	// Normalize resource fields: default scheme and propagate resource key as
	// the resource id when the operator didn't repeat it.
	for key, resource := range c.Resources {
		if resource.ResourceID == "" {
			resource.ResourceID = key
		}
		if resource.Scheme == "" {
			resource.Scheme = "exact"
		}
		c.Resources[key] = resource
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger.rpc_url is required")
	}
	if c.Ledger.Network == "" {
		errs = append(errs, "ledger.network is required")
	}

	if len(c.Assets) == 0 {
		errs = append(errs, "at least one entry in assets is required")
	}
	seenAssets := make(map[string]bool, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Code == "" || asset.Mint == "" {
			errs = append(errs, fmt.Sprintf("asset %q must set both code and mint", asset.Code))
			continue
		}
		// CRITICAL: only known stablecoin mints are accepted as payment.
		// A typo here routes real payments to the wrong token permanently.
		if _, err := money.ValidateStablecoinMint(asset.Mint); err != nil {
			errs = append(errs, fmt.Sprintf("asset %q: %v", asset.Code, err))
		}
		seenAssets[strings.ToUpper(asset.Code)] = true
	}

	if len(c.Resources) == 0 {
		errs = append(errs, "resources must define at least one protected resource")
	}
	for name, resource := range c.Resources {
		if resource.AtomicAmount <= 0 {
			errs = append(errs, fmt.Sprintf("resources[%q].atomic_amount must be positive", name))
		}
		if resource.Asset == "" {
			errs = append(errs, fmt.Sprintf("resources[%q].asset is required", name))
		} else if !seenAssets[strings.ToUpper(resource.Asset)] {
			errs = append(errs, fmt.Sprintf("resources[%q].asset %q is not declared in assets", name, resource.Asset))
		}
		switch resource.Scheme {
		case "", "exact", "channel":
		default:
			errs = append(errs, fmt.Sprintf("resources[%q].scheme %q must be \"exact\" or \"channel\"", name, resource.Scheme))
		}
		if resource.Scheme == "channel" && !c.Channel.Enabled {
			errs = append(errs, fmt.Sprintf("resources[%q] uses scheme \"channel\" but channel.enabled is false", name))
		}
		if resource.Scheme != "channel" && resource.PayToOwner == "" {
			errs = append(errs, fmt.Sprintf("resources[%q].pay_to_owner is required for scheme %q", name, resource.Scheme))
		}
	}

	if c.Channel.Enabled && c.Channel.ProgramID == "" {
		errs = append(errs, "channel.program_id is required when channel.enabled is true")
	}

	switch c.Replay.Backend {
	case "memory":
	case "postgres":
		if c.Replay.PostgresURL == "" {
			errs = append(errs, "replay.postgres_url is required when replay.backend is \"postgres\"")
		}
	case "mongodb":
		if c.Replay.MongoDBURL == "" {
			errs = append(errs, "replay.mongodb_url is required when replay.backend is \"mongodb\"")
		}
		if c.Replay.MongoDBDatabase == "" {
			errs = append(errs, "replay.mongodb_database is required when replay.backend is \"mongodb\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("replay.backend %q must be \"memory\", \"postgres\", or \"mongodb\"", c.Replay.Backend))
	}

	if c.Receipts.Enabled {
		if c.Receipts.MongoDBURL == "" {
			errs = append(errs, "receipts.mongodb_url is required when receipts.enabled is true")
		}
		if c.Receipts.MongoDBDatabase == "" {
			errs = append(errs, "receipts.mongodb_database is required when receipts.enabled is true")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25 // default
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5 // default
	}

	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute // default
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
