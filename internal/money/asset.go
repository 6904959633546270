package money

import (
	"fmt"
	"sync"
)

// Asset represents an SPL token usable as the settlement asset for a
// payment requirement.
type Asset struct {
	Code     string // Asset code (USDC, USDT, ...)
	Decimals uint8  // Number of decimal places (6 for USDC)
	Mint     string // Solana token mint address (base58)
}

// Global asset registry with concurrent access protection. Registered at
// startup from config, but ships with the well-known mainnet stablecoins
// so tests and examples don't need a config file.
var (
	assetRegistry = map[string]Asset{
		"USDC": {
			Code:     "USDC",
			Decimals: 6,
			Mint:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC mainnet
		},
		"USDT": {
			Code:     "USDT",
			Decimals: 6,
			Mint:     "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", // USDT mainnet
		},
		"PYUSD": {
			Code:     "PYUSD",
			Decimals: 6,
			Mint:     "2b1kV6DkPAnxd5ixfnxCpjxmKwqjjaYmCZfHsFu24GXo", // PYUSD mainnet
		},
		// SOL is registered for fee-estimation/display purposes only; it is
		// never itself a valid settlement asset (§1's fixed-stablecoin scope).
		"SOL": {
			Code:     "SOL",
			Decimals: 9,
			Mint:     "So11111111111111111111111111111111111111112", // wrapped SOL
		},
	}
	assetRegistryMu sync.RWMutex
)

// GetAsset retrieves an asset from the registry.
func GetAsset(code string) (Asset, error) {
	assetRegistryMu.RLock()
	asset, ok := assetRegistry[code]
	assetRegistryMu.RUnlock()

	if !ok {
		return Asset{}, fmt.Errorf("money: unknown asset: %s", code)
	}
	return asset, nil
}

// MustGetAsset retrieves an asset and panics if not found (for tests/constants).
func MustGetAsset(code string) Asset {
	asset, err := GetAsset(code)
	if err != nil {
		panic(err)
	}
	return asset
}

// RegisterAsset adds or replaces an asset in the registry, called during
// config load for every entry under the asset registry section.
func RegisterAsset(asset Asset) error {
	if asset.Code == "" {
		return fmt.Errorf("money: asset code required")
	}
	if asset.Decimals > 18 {
		return fmt.Errorf("money: decimals must be <= 18")
	}
	if asset.Mint == "" {
		return fmt.Errorf("money: asset %s missing mint address", asset.Code)
	}

	assetRegistryMu.Lock()
	assetRegistry[asset.Code] = asset
	assetRegistryMu.Unlock()

	return nil
}

// ListAssets returns all registered assets.
func ListAssets() []Asset {
	assetRegistryMu.RLock()
	assets := make([]Asset, 0, len(assetRegistry))
	for _, asset := range assetRegistry {
		assets = append(assets, asset)
	}
	assetRegistryMu.RUnlock()

	return assets
}

// AssetByMint looks up a registered asset by its Solana mint address.
func AssetByMint(mint string) (Asset, error) {
	assetRegistryMu.RLock()
	defer assetRegistryMu.RUnlock()
	for _, asset := range assetRegistry {
		if asset.Mint == mint {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("money: no registered asset for mint %s", mint)
}
