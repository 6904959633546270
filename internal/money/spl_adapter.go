package money

import (
	"fmt"
	"math"
)

// SPLAdapter converts Money to Solana SPL token format.
// SPL tokens use uint64 for amounts, while we use int64 internally.
type SPLAdapter struct{}

// NewSPLAdapter creates a new SPL token adapter.
func NewSPLAdapter() *SPLAdapter {
	return &SPLAdapter{}
}

// ToSPLAmount converts Money to SPL token format.
// Returns (mint address, amount) where:
//   - mint is the base58-encoded Solana token mint address
//   - amount is uint64 in the token's atomic units (micro-USDC, etc.)
//
// Example:
//   - Money{USDC, 1500000} → ("EPjF...", 1500000)  // 1.5 USDC
//
// Returns error if the amount is negative (SPL tokens use uint64, cannot
// represent negative amounts).
func (a *SPLAdapter) ToSPLAmount(m Money) (mint string, amount uint64, err error) {
	if m.Atomic < 0 {
		return "", 0, fmt.Errorf("money: SPL token amount cannot be negative: %d", m.Atomic)
	}
	// int64 max value is less than uint64 max, so positive int64 values
	// always fit in uint64.
	return m.Asset.Mint, uint64(m.Atomic), nil
}

// FromSPLAmount converts SPL token format to Money.
// Takes mint address and uint64 amount.
//
// Example:
//   - ("EPjF...", 1500000) → Money{USDC, 1500000}  // 1.5 USDC
//
// Returns error if the mint is not registered, or if the amount overflows
// int64.
func (a *SPLAdapter) FromSPLAmount(mint string, amount uint64) (Money, error) {
	asset, err := AssetByMint(mint)
	if err != nil {
		return Money{}, err
	}

	if amount > math.MaxInt64 {
		return Money{}, fmt.Errorf("money: SPL amount exceeds int64 max: %d", amount)
	}

	return Money{Asset: asset, Atomic: int64(amount)}, nil
}

// ValidateSPLAmount checks if a Money value is valid for SPL tokens:
// the amount must be non-negative (uint64 limitation).
func (a *SPLAdapter) ValidateSPLAmount(m Money) error {
	if m.Atomic < 0 {
		return fmt.Errorf("money: SPL token amount cannot be negative: %d", m.Atomic)
	}
	return nil
}

// GetMintDecimals returns the number of decimals for an SPL token mint.
func (a *SPLAdapter) GetMintDecimals(mint string) (uint8, error) {
	asset, err := AssetByMint(mint)
	if err != nil {
		return 0, err
	}
	return asset.Decimals, nil
}
