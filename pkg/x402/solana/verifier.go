package solana

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/internal/metrics"
	"github.com/CedrosPay/server/internal/replay"
	"github.com/CedrosPay/server/pkg/x402"
)

// TransferVerifier implements the exact-scheme verification procedure (C5):
// decode, consult the replay cache, fetch the transaction, match it
// against the requirement, check its age, then atomically consume the
// replay cache. Steps 3-5 are read-only and may run concurrently across
// distinct signatures; TryConsume is the sole serialization point.
type TransferVerifier struct {
	ledger  Ledger
	cache   replay.Cache
	clock   func() time.Time
	metrics *metrics.Metrics
	network string
}

// NewTransferVerifier builds a C5 verifier against the given ledger
// collaborator and replay cache.
func NewTransferVerifier(ledger Ledger, cache replay.Cache, network string) *TransferVerifier {
	return &TransferVerifier{
		ledger:  ledger,
		cache:   cache,
		clock:   time.Now,
		network: network,
	}
}

// WithMetrics attaches a metrics collector.
func (v *TransferVerifier) WithMetrics(m *metrics.Metrics) *TransferVerifier {
	v.metrics = m
	return v
}

// CheckShape performs the header-structure and payload-shape checks only:
// no ledger fetch, no replay-cache access. This is the fast path a gateway
// uses to pre-screen a proof before committing to the full Verify call.
func (v *TransferVerifier) CheckShape(proof *x402.PaymentProof) x402.VerificationResult {
	if proof.Exact == nil || proof.Exact.Signature == "" {
		return failure(x402.ErrInvalidHeader, "missing exact payload signature")
	}
	return x402.VerificationResult{Valid: true, Signature: proof.Exact.Signature}
}

// Verify runs the full 7-step exact-scheme procedure against a decoded
// proof and its requirement. opts tunes the call, notably whether the
// replay cache is consulted at all (opts.SkipReplayCheck) and how old a
// transaction may be before it's rejected (opts.MaxAgeMs).
func (v *TransferVerifier) Verify(ctx context.Context, proof *x402.PaymentProof, requirement x402.PaymentRequirement, opts x402.VerifyOptions) x402.VerificationResult {
	log := logger.FromContext(ctx)

	// Step 1: decode (already done by the caller via x402.DecodeProof; here
	// we only validate the scheme-specific payload shape).
	if proof.Exact == nil || proof.Exact.Signature == "" {
		return failure(x402.ErrInvalidHeader, "missing exact payload signature")
	}
	signature := proof.Exact.Signature

	// Step 2: replay-cache consult (fast rejection before touching the ledger).
	if !opts.SkipReplayCheck {
		if existing, err := v.cache.Peek(ctx, signature); err == nil {
			return replayResult(existing)
		} else if err != replay.ErrNotFound {
			return failure(x402.ErrRpcError, fmt.Sprintf("replay cache peek: %v", err))
		}
	}

	// Step 3: fetch the transaction at "confirmed" commitment.
	rpcStart := time.Now()
	tx, err := v.ledger.GetTransaction(ctx, signature, "confirmed")
	if v.metrics != nil {
		v.metrics.ObserveRPCCall("GetTransaction", v.network, time.Since(rpcStart), err)
	}
	if err != nil {
		return failure(x402.ErrRpcError, err.Error())
	}
	if tx == nil {
		return failure(x402.ErrTxNotFound, "")
	}
	if tx.Failed {
		return failure(x402.ErrTxFailed, "")
	}

	// Step 4: parse transfers and match against the requirement.
	transfers, err := ParseTransfers(tx)
	if err != nil {
		return failure(x402.KindOf(err), err.Error())
	}

	match, required, err := matchTransfer(transfers, requirement)
	if err != nil {
		return failure(x402.KindOf(err), err.Error())
	}
	if match == nil {
		return failure(x402.ErrTransferMismatch, fmt.Sprintf("no transfer met maxAmountRequired=%s to %s", requirement.MaxAmountRequired, requirement.PayTo))
	}
	_ = required

	// Step 5: freshness check.
	if tx.BlockTime != nil && opts.MaxAgeMs > 0 {
		ageMs := (v.clock().Unix() - *tx.BlockTime) * 1000
		if ageMs > opts.MaxAgeMs {
			return failure(x402.ErrTxExpired, fmt.Sprintf("age %dms exceeds %dms", ageMs, opts.MaxAgeMs))
		}
	}

	// Step 6: atomically consume the replay cache. This is the sole
	// serialization point; everything above is safely concurrent across
	// distinct signatures. Callers that set opts.SkipReplayCheck (e.g. a
	// retry path that has already consumed this signature) skip this too.
	if !opts.SkipReplayCheck {
		entry := replay.Entry{
			Signature:       signature,
			FirstConsumedAt: v.clock(),
			TTLExpiresAt:    v.clock().Add(x402.ReplayTTL(requirement)),
			Resource:        requirement.Resource,
			AmountConsumed:  match.Amount,
			Payer:           match.Authority,
		}
		outcome, err := v.cache.TryConsume(ctx, entry)
		if err != nil {
			return failure(x402.ErrRpcError, fmt.Sprintf("replay cache consume: %v", err))
		}
		if !outcome.FirstTime {
			return replayResult(outcome.Entry)
		}
	}

	log.Info().
		Str("signature", logger.TruncateAddress(signature)).
		Str("payer", logger.TruncateAddress(match.Authority)).
		Int64("amount", match.Amount).
		Msg("payment.verified")

	// Step 7: success.
	return x402.VerificationResult{
		Valid:     true,
		Transfer:  match,
		Signature: signature,
		Amount:    match.Amount,
		Payer:     match.Authority,
		BlockTime: tx.BlockTime,
		Slot:      &tx.Slot,
	}
}

// matchTransfer finds the first parsed transfer satisfying the
// requirement's destination, mint, and minimum amount.
func matchTransfer(transfers []x402.TransferRecord, requirement x402.PaymentRequirement) (*x402.TransferRecord, int64, error) {
	required, err := strconv.ParseInt(requirement.MaxAmountRequired, 10, 64)
	if err != nil {
		return nil, 0, x402.NewVerificationError(x402.ErrInvalidHeader, fmt.Errorf("invalid maxAmountRequired: %w", err))
	}

	for i := range transfers {
		t := &transfers[i]
		if !pubkeysEqual(t.Destination, requirement.PayTo) {
			continue
		}
		if !pubkeysEqual(t.Mint, requirement.Asset) {
			continue
		}
		if t.Amount < required {
			continue
		}
		return t, required, nil
	}
	return nil, required, nil
}

func failure(kind x402.ErrorKind, detail string) x402.VerificationResult {
	return x402.VerificationResult{
		Valid:       false,
		ErrorKind:   kind,
		ErrorDetail: detail,
	}
}

func replayResult(entry replay.Entry) x402.VerificationResult {
	return x402.VerificationResult{
		Valid:       false,
		ErrorKind:   x402.ErrReplayAttack,
		ErrorDetail: fmt.Sprintf("signature already consumed at %s", entry.FirstConsumedAt.Format(time.RFC3339)),
		Signature:   entry.Signature,
	}
}
