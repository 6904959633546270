package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use X402_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "X402_SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "X402_ADMIN_METRICS_API_KEY")

	// Logging config
	setIfEnv(&c.Logging.Level, "X402_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "X402_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "X402_ENVIRONMENT")

	// Ledger config
	setIfEnv(&c.Ledger.Network, "X402_LEDGER_NETWORK")
	setIfEnv(&c.Ledger.RPCURL, "X402_LEDGER_RPC_URL")
	setIfEnv(&c.Ledger.Commitment, "X402_LEDGER_COMMITMENT")

	// Channel config
	setBoolIfEnv(&c.Channel.Enabled, "X402_CHANNEL_ENABLED")
	setIfEnv(&c.Channel.ProgramID, "X402_CHANNEL_PROGRAM_ID")

	// Facilitator config
	setIfEnv(&c.Facilitator.Address, "X402_FACILITATOR_ADDRESS")

	// Replay config
	setIfEnv(&c.Replay.Backend, "X402_REPLAY_BACKEND")
	setDurationIfEnv(&c.Replay.TTL, "X402_REPLAY_TTL")
	setIfEnv(&c.Replay.PostgresURL, "X402_REPLAY_POSTGRES_URL")
	setIfEnv(&c.Replay.MongoDBURL, "X402_REPLAY_MONGODB_URL")
	setIfEnv(&c.Replay.MongoDBDatabase, "X402_REPLAY_MONGODB_DATABASE")
	setIfEnv(&c.Replay.MongoCollection, "X402_REPLAY_MONGODB_COLLECTION")

	// Receipt archive config
	setBoolIfEnv(&c.Receipts.Enabled, "X402_RECEIPTS_ENABLED")
	setIfEnv(&c.Receipts.MongoDBURL, "X402_RECEIPTS_MONGODB_URL")
	setIfEnv(&c.Receipts.MongoDBDatabase, "X402_RECEIPTS_MONGODB_DATABASE")
	setIfEnv(&c.Receipts.MongoCollection, "X402_RECEIPTS_MONGODB_COLLECTION")

	// Asset registry (X402_ASSET_<CODE>_MINT; decimals come from YAML only)
	c.applyAssetEnvOverrides()
}

// applyAssetEnvOverrides layers env-provided mints onto assets already
// declared in YAML, matched by code, without requiring the whole asset list
// to live in the environment.
func (c *Config) applyAssetEnvOverrides() {
	for i := range c.Assets {
		code := strings.ToUpper(c.Assets[i].Code)
		if code == "" {
			continue
		}
		setIfEnv(&c.Assets[i].Mint, fmt.Sprintf("X402_ASSET_%s_MINT", code))
	}
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}
