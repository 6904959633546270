// Package requirements implements the requirements generator (C7): turning
// a priced resource into the PaymentRequirement(s) a 402 response offers.
package requirements

import (
	"fmt"
	"strconv"

	"github.com/CedrosPay/server/internal/money"
	"github.com/CedrosPay/server/internal/solana"
	"github.com/CedrosPay/server/pkg/x402"
)

// PricedResource is what a resource owner configures per protected route.
type PricedResource struct {
	Resource          string
	PriceUSD          string // decimal major-unit string, e.g. "0.05"
	AssetCode         string // registry key, e.g. "USDC"
	PayToOwner        string // wallet owner address (ATA is derived from this + asset mint)
	Network           string
	MaxTimeoutSeconds int
	Description       string
	MimeType          string
}

// Generator builds PaymentRequirement documents from priced resources.
type Generator struct {
	defaultNetwork           string
	defaultMaxTimeoutSeconds int
	spl                      *money.SPLAdapter
}

// New builds a Generator with the given defaults, applied when a
// PricedResource doesn't override them.
func New(defaultNetwork string, defaultMaxTimeoutSeconds int) *Generator {
	if defaultMaxTimeoutSeconds <= 0 {
		defaultMaxTimeoutSeconds = x402.DefaultMaxTimeoutSeconds
	}
	return &Generator{
		defaultNetwork:           defaultNetwork,
		defaultMaxTimeoutSeconds: defaultMaxTimeoutSeconds,
		spl:                      money.NewSPLAdapter(),
	}
}

// Generate builds the single PaymentRequirement for a priced resource
// under the "exact" scheme: maxAmountRequired = round(priceUSD ×
// 10^assetDecimals), payTo is the resource owner's associated token
// account for the chosen asset.
func (g *Generator) Generate(resource PricedResource) (x402.PaymentRequirement, error) {
	asset, err := money.GetAsset(resource.AssetCode)
	if err != nil {
		return x402.PaymentRequirement{}, fmt.Errorf("requirements: %w", err)
	}

	amount, err := money.FromMajor(asset, resource.PriceUSD)
	if err != nil {
		return x402.PaymentRequirement{}, fmt.Errorf("requirements: parse price: %w", err)
	}
	if amount.Atomic <= 0 {
		return x402.PaymentRequirement{}, fmt.Errorf("requirements: priceUSD must be greater than zero, got %q", resource.PriceUSD)
	}

	// maxAmountRequired travels the wire as a decimal string, but it must
	// still satisfy SPL's uint64 atomic-amount constraint (no negative
	// prices) before it's offered to a client.
	mint, atomic, err := g.spl.ToSPLAmount(amount)
	if err != nil {
		return x402.PaymentRequirement{}, fmt.Errorf("requirements: %w", err)
	}

	payTo, err := solana.AssociatedTokenAccountFromBase58(resource.PayToOwner, mint)
	if err != nil {
		return x402.PaymentRequirement{}, fmt.Errorf("requirements: derive payTo: %w", err)
	}

	network := resource.Network
	if network == "" {
		network = g.defaultNetwork
	}
	timeout := resource.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = g.defaultMaxTimeoutSeconds
	}

	return x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           network,
		MaxAmountRequired: strconv.FormatUint(atomic, 10),
		Resource:          resource.Resource,
		PayTo:             payTo,
		Asset:             mint,
		MaxTimeoutSeconds: timeout,
		Description:       resource.Description,
		MimeType:          resource.MimeType,
	}, nil
}

// GenerateMultiple builds one PaymentRequirement per tier, for resources
// priced with several accepted tiers (e.g. a discounted bulk rate offered
// alongside the standard price) — every tier is listed in `accepts` and a
// client may satisfy any one of them.
func (g *Generator) GenerateMultiple(tiers []PricedResource) (x402.PaymentRequirementsDocument, error) {
	doc := x402.PaymentRequirementsDocument{ProtocolVersion: x402.ProtocolVersion}
	for _, tier := range tiers {
		req, err := g.Generate(tier)
		if err != nil {
			return x402.PaymentRequirementsDocument{}, err
		}
		doc.Accepts = append(doc.Accepts, req)
	}
	return doc, nil
}
