// Package solana holds small ledger-address helpers shared by the proof
// codec, the transfer verifier, and the requirements generator. This
// service never holds or signs a private key (Non-goal: custodial
// wallet) — every function here is read-only address arithmetic.
package solana

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// ParseAddress validates a base58-encoded Solana public key and returns
// its typed form.
func ParseAddress(base58Address string) (solanago.PublicKey, error) {
	pk, err := solanago.PublicKeyFromBase58(base58Address)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("solana: invalid address %q: %w", base58Address, err)
	}
	return pk, nil
}

// IsValidAddress reports whether s decodes as a well-formed base58 public key.
func IsValidAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// AssociatedTokenAccount derives the associated token account address for
// owner holding mint, mirroring the on-chain PDA derivation the SPL
// associated-token-account program uses.
func AssociatedTokenAccount(owner, mint solanago.PublicKey) (solanago.PublicKey, error) {
	ata, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("solana: derive associated token account: %w", err)
	}
	return ata, nil
}

// AssociatedTokenAccountFromBase58 is a convenience wrapper taking base58
// owner/mint addresses and returning the ATA address as a string.
func AssociatedTokenAccountFromBase58(ownerBase58, mintBase58 string) (string, error) {
	owner, err := ParseAddress(ownerBase58)
	if err != nil {
		return "", err
	}
	mint, err := ParseAddress(mintBase58)
	if err != nil {
		return "", err
	}
	ata, err := AssociatedTokenAccount(owner, mint)
	if err != nil {
		return "", err
	}
	return ata.String(), nil
}
