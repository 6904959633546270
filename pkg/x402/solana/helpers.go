package solana

import (
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// pubkeysEqual compares two base58-encoded public keys for equality.
func pubkeysEqual(expected string, actual string) bool {
	exp, err := solana.PublicKeyFromBase58(expected)
	if err != nil {
		return false
	}
	act, err := solana.PublicKeyFromBase58(actual)
	if err != nil {
		return false
	}
	return exp.Equals(act)
}

// commitmentFromString converts a string to rpc.CommitmentType, defaulting
// to the "confirmed" level this verifier always requests (§4.3).
func commitmentFromString(value string) rpc.CommitmentType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized", "finalised":
		return rpc.CommitmentFinalized
	case "confirmed", "":
		return rpc.CommitmentConfirmed
	default:
		return rpc.CommitmentConfirmed
	}
}

// isAccountNotFoundError checks if the error indicates an account was not
// found, used by the channel verifier (C6) to distinguish ChannelNotFound
// from a transport-level RpcError.
func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "account not found") ||
		strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "invalid account owner") ||
		strings.Contains(msg, "invalidaccountdata") ||
		strings.Contains(msg, "invalid account data")
}
