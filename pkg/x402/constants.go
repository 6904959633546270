package x402

import "time"

const (
	// ProtocolVersion is the only x402Version this server understands.
	ProtocolVersion = 1

	// SchemeExact is a single settlement transaction for the stated amount.
	SchemeExact = "exact"
	// SchemeChannel is an incremental, off-chain signed claim against an
	// on-chain settlement channel account.
	SchemeChannel = "channel"

	// DefaultMaxTimeoutSeconds bounds how old an accepted transaction's
	// blockTime may be at verification time, absent an explicit override.
	DefaultMaxTimeoutSeconds = 300

	// MinReplayTTL is the floor for the replay cache's TTL regardless of
	// requirement.maxTimeoutSeconds, chosen to survive clock skew between
	// origin, client, and ledger.
	MinReplayTTL = 10 * time.Minute

	// DefaultRPCTimeout bounds every outbound RPC call absent a
	// per-operation deadline from configuration.
	DefaultRPCTimeout = 10 * time.Second

	// ReplaySweepDivisor bounds the in-memory replay cache's background
	// sweep period to at most TTL/ReplaySweepDivisor.
	ReplaySweepDivisor = 4
)

// TransferPairingTolerance is the maximum base-unit asymmetry allowed
// between a credit and its paired debit when the balance-delta parser (C3)
// greedily pairs transfers. The stablecoin assets in this system's
// registry carry no token-program transfer fee today; the tolerance is
// defensive against any future fee-bearing asset.
const TransferPairingTolerance = 100
