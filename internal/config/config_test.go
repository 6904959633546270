package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Empty path still applies defaults, but required fields are still unset.
	clearEnv()
	cfg, err := Load("")
	if err == nil {
		t.Fatal("expected error when required fields are missing, got nil")
	}
	if cfg != nil {
		t.Fatal("expected nil config when validation fails")
	}
}

func TestLoadConfig_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{
			name: "missing rpc url",
			envVars: map[string]string{
				"X402_LEDGER_NETWORK": "mainnet-beta",
			},
			wantErr: "ledger.rpc_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			defer clearEnv()

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadConfig_ValidMinimal(t *testing.T) {
	cfg := validMinimalConfig(t)

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Replay.Backend != "memory" {
		t.Errorf("expected default replay backend 'memory', got %s", cfg.Replay.Backend)
	}
}

func TestLoadConfig_ResourceRequiresKnownAsset(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ledger.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.Ledger.Network = "mainnet-beta"
	cfg.Assets = []AssetConfig{{Code: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}}
	cfg.Resources = map[string]Resource{
		"report": {AtomicAmount: 10_000, Asset: "UNKNOWN"},
	}

	if err := cfg.finalize(); err == nil {
		t.Fatal("expected error when resource references an undeclared asset")
	} else if !strings.Contains(err.Error(), "not declared in assets") {
		t.Errorf("expected 'not declared in assets' error, got: %v", err)
	}
}

func TestLoadConfig_ChannelSchemeRequiresChannelEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ledger.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.Ledger.Network = "mainnet-beta"
	cfg.Assets = []AssetConfig{{Code: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}}
	cfg.Resources = map[string]Resource{
		"stream": {AtomicAmount: 10_000, Asset: "USDC", Scheme: "channel"},
	}

	if err := cfg.finalize(); err == nil {
		t.Fatal("expected error when a channel-scheme resource is configured without channel.enabled")
	} else if !strings.Contains(err.Error(), "channel.enabled is false") {
		t.Errorf("expected channel.enabled error, got: %v", err)
	}
}

func TestLoadConfig_InvalidStablecoinMint(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ledger.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.Ledger.Network = "mainnet-beta"
	cfg.Assets = []AssetConfig{{Code: "FAKE", Mint: "11111111111111111111111111111111", Decimals: 6}}
	cfg.Resources = map[string]Resource{
		"report": {AtomicAmount: 10_000, Asset: "FAKE"},
	}

	if err := cfg.finalize(); err == nil {
		t.Fatal("expected error for a non-stablecoin mint")
	}
}

func TestLoadConfig_ReceiptsRequireMongoSettingsWhenEnabled(t *testing.T) {
	cfg := validMinimalConfig(t)
	cfg.Receipts.Enabled = true
	cfg.Receipts.MongoDBURL = ""
	cfg.Receipts.MongoDBDatabase = ""

	err := cfg.finalize()
	if err == nil {
		t.Fatal("expected error when receipts.enabled is true without mongo settings")
	}
	if !strings.Contains(err.Error(), "receipts.mongodb_url") {
		t.Errorf("expected receipts.mongodb_url error, got: %v", err)
	}
}

func TestPostgresReplayRequiresURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ledger.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.Ledger.Network = "mainnet-beta"
	cfg.Assets = []AssetConfig{{Code: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}}
	cfg.Resources = map[string]Resource{"report": {AtomicAmount: 10_000, Asset: "USDC"}}
	cfg.Replay.Backend = "postgres"

	if err := cfg.finalize(); err == nil {
		t.Fatal("expected error when postgres backend selected without postgres_url")
	} else if !strings.Contains(err.Error(), "replay.postgres_url") {
		t.Errorf("expected replay.postgres_url error, got: %v", err)
	}
}

// validMinimalConfig builds and loads a config that should pass validation,
// failing the test immediately if it doesn't.
func validMinimalConfig(t *testing.T) *Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.Ledger.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.Ledger.Network = "mainnet-beta"
	cfg.Assets = []AssetConfig{{Code: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}}
	cfg.Resources = map[string]Resource{
		"report": {AtomicAmount: 10_000, Asset: "USDC", PayToOwner: "11111111111111111111111111111112"},
	}
	if err := cfg.finalize(); err != nil {
		t.Fatalf("expected no error with valid config, got: %v", err)
	}
	return cfg
}

// Test helpers

func clearEnv() {
	envVars := []string{
		"X402_SERVER_ADDRESS", "X402_ADMIN_METRICS_API_KEY",
		"X402_LOG_LEVEL", "X402_LOG_FORMAT", "X402_ENVIRONMENT",
		"X402_LEDGER_NETWORK", "X402_LEDGER_RPC_URL", "X402_LEDGER_COMMITMENT",
		"X402_CHANNEL_ENABLED", "X402_CHANNEL_PROGRAM_ID",
		"X402_FACILITATOR_ADDRESS",
		"X402_REPLAY_BACKEND", "X402_REPLAY_TTL",
		"X402_REPLAY_POSTGRES_URL", "X402_REPLAY_MONGODB_URL",
		"X402_REPLAY_MONGODB_DATABASE", "X402_REPLAY_MONGODB_COLLECTION",
		"X402_ASSET_USDC_MINT",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
