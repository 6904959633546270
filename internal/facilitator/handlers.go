// Package facilitator implements the facilitator façade (C9): a standalone
// HTTP service that resource servers delegate payment verification and
// settlement to, rather than talking to the ledger themselves. It exposes
// /verify (read-only check), /settle (verify + consume the replay/nonce
// guard), and /supported (scheme/network capability discovery).
package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/internal/metrics"
	"github.com/CedrosPay/server/pkg/responders"
	"github.com/CedrosPay/server/pkg/x402"
)

// Verifier is the shape shared by the exact (C5) and channel (C6) verifiers.
type Verifier interface {
	// CheckShape performs header-structure + payload-shape checks only. It
	// never touches the ledger or the replay cache, so it's safe to call
	// any number of times for the same proof.
	CheckShape(proof *x402.PaymentProof) x402.VerificationResult

	// Verify performs the full procedure: ledger fetch, transfer/claim
	// validation, and replay-cache (or nonce) consumption.
	Verify(ctx context.Context, proof *x402.PaymentProof, requirement x402.PaymentRequirement, opts x402.VerifyOptions) x402.VerificationResult
}

// SupportedKind describes one scheme/network pair the facilitator can serve.
type SupportedKind struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// Handlers holds the facilitator's collaborators. /verify is a read-only
// fast path for gateways: header-structure + scheme/network support +
// payload-shape checks, via Verifier.CheckShape. It never contacts the
// ledger and never consumes the replay cache, so a verify "ok" does not
// imply settle will succeed. /settle runs the full procedure via
// Verifier.Verify, including ledger fetch, transfer/claim validation, and
// replay-cache (or nonce) consumption, and additionally archives the
// resulting receipt when an archive is configured.
type Handlers struct {
	Exact     Verifier
	Channel   Verifier
	Supported []SupportedKind
	Metrics   *metrics.Metrics
	Receipts  ReceiptArchive
}

// ReceiptArchive persists settled receipts for operator auditing. Nil is a
// valid value — archiving is best-effort record-keeping, not required for
// settlement to succeed.
type ReceiptArchive interface {
	Record(ctx context.Context, receipt x402.PaymentReceipt, resource, payer string) error
}

// verifyRequest is the facilitator's wire request shape for both /verify
// and /settle: the client's X-PAYMENT header value plus the requirement it
// claims to satisfy.
type verifyRequest struct {
	PaymentHeader string                  `json:"paymentHeader"`
	Requirement   x402.PaymentRequirement `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

type settleResponse struct {
	Success       bool   `json:"success"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Signature     string `json:"txHash,omitempty"`
	Network       string `json:"networkId,omitempty"`
}

func (h *Handlers) verifierFor(scheme string) Verifier {
	if scheme == x402.SchemeChannel {
		return h.Channel
	}
	return h.Exact
}

// supports reports whether scheme/network is one of the pairs this
// facilitator instance advertises via /supported.
func (h *Handlers) supports(scheme, network string) bool {
	for _, kind := range h.Supported {
		if kind.Scheme == scheme && kind.Network == network {
			return true
		}
	}
	return false
}

func decodeVerifyRequest(r *http.Request) (verifyRequest, *x402.PaymentProof, error) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, x402.NewVerificationError(x402.ErrInvalidHeader, err)
	}
	proof, err := x402.DecodeProof(req.PaymentHeader)
	if err != nil {
		return req, nil, err
	}
	return req, proof, nil
}

// Verify handles POST /verify: header-structure + scheme/network support +
// payload-shape checks only. It never contacts the ledger and never
// consumes the replay cache or advances a channel nonce — callers must
// not infer that a "valid" /verify result means a subsequent /settle for
// the same proof will succeed.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	req, proof, err := decodeVerifyRequest(r)
	if err != nil {
		writeVerify(w, false, string(x402.KindOf(err)), "")
		return
	}

	if !h.supports(proof.Scheme, req.Requirement.Network) {
		writeVerify(w, false, string(x402.ErrUnsupportedScheme), "")
		return
	}

	verifier := h.verifierFor(proof.Scheme)
	if verifier == nil {
		writeVerify(w, false, string(x402.ErrUnsupportedScheme), "")
		return
	}

	result := verifier.CheckShape(proof)
	h.observe(log, "verify", req.Requirement.Network, start, result)
	writeVerify(w, result.Valid, string(result.ErrorKind), result.Payer)
}

// Settle handles POST /settle: the full C5/C6 procedure, including ledger
// fetch, transfer/claim validation, and replay-cache (or nonce)
// consumption, plus archiving the resulting receipt when verification
// succeeds and an archive is configured.
func (h *Handlers) Settle(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	req, proof, err := decodeVerifyRequest(r)
	if err != nil {
		writeSettle(w, false, string(x402.KindOf(err)), "", "")
		return
	}

	verifier := h.verifierFor(proof.Scheme)
	if verifier == nil {
		writeSettle(w, false, string(x402.ErrUnsupportedScheme), "", "")
		return
	}

	opts := x402.DefaultVerifyOptions(req.Requirement)
	result := verifier.Verify(r.Context(), proof, req.Requirement, opts)
	h.observe(log, "settle", req.Requirement.Network, start, result)

	if result.Valid && h.Receipts != nil {
		receipt := x402.PaymentReceipt{
			Signature: result.Signature,
			Network:   req.Requirement.Network,
			Amount:    result.Amount,
			Timestamp: time.Now().UnixMilli(),
			Status:    "verified",
			BlockTime: result.BlockTime,
			Slot:      result.Slot,
		}
		if err := h.Receipts.Record(r.Context(), receipt, req.Requirement.Resource, result.Payer); err != nil {
			log.Warn().Err(err).Str("signature", result.Signature).Msg("facilitator.receipt_archive_failed")
		}
	}

	writeSettle(w, result.Valid, string(result.ErrorKind), result.Signature, req.Requirement.Network)
}

// Supported handles GET /supported: the scheme/network pairs this
// facilitator instance can verify and settle.
func (h *Handlers) Supported(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, struct {
		ProtocolVersion int             `json:"x402Version"`
		Kinds           []SupportedKind `json:"kinds"`
	}{ProtocolVersion: x402.ProtocolVersion, Kinds: h.Supported})
}

func (h *Handlers) observe(log zerolog.Logger, op, network string, start time.Time, result x402.VerificationResult) {
	duration := time.Since(start)
	log.Info().
		Str("op", op).
		Str("network", network).
		Bool("valid", result.Valid).
		Str("error_kind", string(result.ErrorKind)).
		Dur("duration", duration).
		Msg("facilitator.request")
	if h.Metrics != nil {
		h.Metrics.ObservePayment(op, network, result.Valid, duration, result.Amount, string(result.ErrorKind))
	}
}

// the facilitator always answers 200 with the outcome embedded in the
// body — it is a service-to-service API, not the origin-facing payment
// wall, so there is no 402 challenge/response dance here.
func writeVerify(w http.ResponseWriter, valid bool, reason, payer string) {
	responders.JSON(w, http.StatusOK, verifyResponse{IsValid: valid, InvalidReason: reason, Payer: payer})
}

func writeSettle(w http.ResponseWriter, ok bool, reason, signature, network string) {
	responders.JSON(w, http.StatusOK, settleResponse{Success: ok, InvalidReason: reason, Signature: signature, Network: network})
}
