package solana

import (
	"math/big"

	"github.com/CedrosPay/server/internal/money"
	"github.com/CedrosPay/server/pkg/x402"
)

// ParseTransfers runs the balance-delta algorithm (C3): it never inspects
// instruction data, only the mint-scoped pre/post token balance snapshot a
// confirmed transaction carries. This is deliberately instruction-agnostic
// so any route to a balance change (direct transfer, transferChecked, a
// program composing several token-program CPIs) is recognized the same
// way.
func ParseTransfers(tx *TransactionRecord) ([]x402.TransferRecord, error) {
	if tx == nil {
		return nil, x402.NewVerificationError(x402.ErrTxNotFound, nil)
	}
	if tx.Failed {
		return nil, x402.NewVerificationError(x402.ErrTxFailed, nil)
	}

	type balanceKey struct {
		account string
		mint    string
	}
	pre := make(map[balanceKey]*big.Int)
	post := make(map[balanceKey]*big.Int)
	owners := make(map[string]string)

	for _, b := range tx.PreTokenBalances {
		account := accountAt(tx.AccountKeys, b.AccountIndex)
		if account == "" {
			continue
		}
		amt, ok := new(big.Int).SetString(b.Amount, 10)
		if !ok {
			continue
		}
		pre[balanceKey{account, b.Mint}] = amt
		if b.Owner != "" {
			owners[account] = b.Owner
		}
	}
	for _, b := range tx.PostTokenBalances {
		account := accountAt(tx.AccountKeys, b.AccountIndex)
		if account == "" {
			continue
		}
		amt, ok := new(big.Int).SetString(b.Amount, 10)
		if !ok {
			continue
		}
		post[balanceKey{account, b.Mint}] = amt
		if b.Owner != "" {
			owners[account] = b.Owner
		}
	}

	type delta struct {
		account string
		mint    string
		amount  *big.Int // positive
	}
	var credits, debits []delta

	seen := make(map[balanceKey]bool)
	for key := range pre {
		seen[key] = true
	}
	for key := range post {
		seen[key] = true
	}

	zero := big.NewInt(0)
	for key := range seen {
		before := pre[key]
		if before == nil {
			before = zero
		}
		after := post[key]
		if after == nil {
			after = zero
		}
		diff := new(big.Int).Sub(after, before)
		switch diff.Sign() {
		case 1:
			credits = append(credits, delta{key.account, key.mint, diff})
		case -1:
			debits = append(debits, delta{key.account, key.mint, new(big.Int).Neg(diff)})
		}
	}

	if len(credits) == 0 || len(debits) == 0 {
		return nil, x402.NewVerificationError(x402.ErrNoTokenTransfer, nil)
	}

	tolerance := big.NewInt(x402.TransferPairingTolerance)
	var transfers []x402.TransferRecord
	usedDebits := make([]bool, len(debits))

	for _, credit := range credits {
		bestIdx := -1
		var bestDiff *big.Int
		for i, debit := range debits {
			if usedDebits[i] || debit.mint != credit.mint {
				continue
			}
			d := new(big.Int).Sub(credit.amount, debit.amount)
			d.Abs(d)
			if d.Cmp(tolerance) > 0 {
				continue
			}
			if bestDiff == nil || d.Cmp(bestDiff) < 0 {
				bestDiff = d
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			continue
		}
		usedDebits[bestIdx] = true
		debit := debits[bestIdx]

		transfers = append(transfers, x402.TransferRecord{
			Source:      debit.account,
			Destination: credit.account,
			Authority:   authorityFor(debit.account, owners),
			Amount:      credit.amount.Int64(),
			Mint:        credit.mint,
		})
	}

	if len(transfers) == 0 {
		return nil, x402.NewVerificationError(x402.ErrNoTokenTransfer, nil)
	}

	return transfers, nil
}

func accountAt(keys []string, index int) string {
	if index < 0 || index >= len(keys) {
		return ""
	}
	return keys[index]
}

// authorityFor reports the owner of the source token account, falling back
// to the account address itself when no owner hint was present in the
// balance snapshot (older RPC responses omit it).
func authorityFor(account string, owners map[string]string) string {
	if owner, ok := owners[account]; ok && owner != "" {
		return owner
	}
	return account
}

// resolveDecimals looks up the registered decimals for a mint, used by
// callers that need to render a matched transfer's amount in asset units
// rather than base units.
func resolveDecimals(mint string) (uint8, error) {
	asset, err := money.AssetByMint(mint)
	if err != nil {
		return 0, err
	}
	return asset.Decimals, nil
}
