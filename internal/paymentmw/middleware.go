// Package paymentmw implements the origin-side payment middleware (C8):
// the chi middleware a protected route wraps itself in, which demands an
// X-PAYMENT header, verifies it via C5/C6, and attaches the result to the
// request context for the handler underneath.
package paymentmw

import (
	"context"
	"net/http"
	"time"

	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/pkg/responders"
	"github.com/CedrosPay/server/pkg/x402"
)

type contextKey int

const paymentInfoKey contextKey = iota

// Verifier is implemented by both the exact and channel verifiers; the
// middleware dispatches to one or the other by proof.Scheme.
type Verifier interface {
	Verify(ctx context.Context, proof *x402.PaymentProof, requirement x402.PaymentRequirement, opts x402.VerifyOptions) x402.VerificationResult
}

// RequirementSource supplies the PaymentRequirement(s) a route demands,
// typically backed by the requirements generator (C7).
type RequirementSource func(r *http.Request) (x402.PaymentRequirementsDocument, error)

// Config wires the middleware to its collaborators.
type Config struct {
	Requirements RequirementSource
	Exact        Verifier
	Channel      Verifier
	Network      string
}

// Middleware returns a chi-compatible middleware enforcing payment on
// every request it wraps.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context())

			doc, err := cfg.Requirements(r)
			if err != nil {
				log.Error().Err(err).Msg("payment.requirements_unavailable")
				responders.JSON(w, http.StatusInternalServerError, x402.PaymentRequirementsDocument{
					ProtocolVersion: x402.ProtocolVersion,
					Error:           "resource pricing unavailable",
				})
				return
			}

			header := r.Header.Get("X-PAYMENT")
			if header == "" {
				writeRequirements(w, doc, "")
				return
			}

			proof, err := x402.DecodeProof(header)
			if err != nil {
				writeRequirements(w, doc, err.Error())
				return
			}

			requirement, ok := matchRequirement(doc, proof)
			if !ok {
				writeRequirements(w, doc, "no accepted requirement matches scheme/network")
				return
			}

			verifier := cfg.Exact
			if proof.Scheme == x402.SchemeChannel {
				verifier = cfg.Channel
			}
			if verifier == nil {
				writeRequirements(w, doc, "scheme not supported by this resource")
				return
			}

			opts := x402.DefaultVerifyOptions(requirement)
			result := verifier.Verify(r.Context(), proof, requirement, opts)
			if !result.Valid {
				log.Warn().
					Str("error_kind", string(result.ErrorKind)).
					Str("detail", result.ErrorDetail).
					Msg("payment.verification_failed")
				writeRequirements(w, doc, string(result.ErrorKind))
				return
			}

			info := x402.PaymentInfo{
				Signature: result.Signature,
				Amount:    result.Amount,
				Payer:     result.Payer,
				BlockTime: result.BlockTime,
				Slot:      result.Slot,
			}
			ctx := context.WithValue(r.Context(), paymentInfoKey, info)

			receipt := x402.PaymentReceipt{
				Signature: result.Signature,
				Network:   requirement.Network,
				Amount:    result.Amount,
				Timestamp: time.Now().UnixMilli(),
				Status:    "verified",
				BlockTime: result.BlockTime,
				Slot:      result.Slot,
			}
			if encoded, err := x402.EncodeReceipt(receipt); err == nil {
				w.Header().Set("X-PAYMENT-RESPONSE", encoded)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func matchRequirement(doc x402.PaymentRequirementsDocument, proof *x402.PaymentProof) (x402.PaymentRequirement, bool) {
	for _, req := range doc.Accepts {
		if req.Scheme == proof.Scheme && (proof.Network == "" || req.Network == proof.Network) {
			return req, true
		}
	}
	return x402.PaymentRequirement{}, false
}

func writeRequirements(w http.ResponseWriter, doc x402.PaymentRequirementsDocument, errMsg string) {
	doc.ProtocolVersion = x402.ProtocolVersion
	doc.Error = errMsg
	responders.JSON(w, http.StatusPaymentRequired, doc)
}

// FromContext retrieves the PaymentInfo the middleware attached on a
// successful verification. ok is false if the request never passed
// through Middleware (or verification failed, in which case the handler
// never runs).
func FromContext(ctx context.Context) (x402.PaymentInfo, bool) {
	info, ok := ctx.Value(paymentInfoKey).(x402.PaymentInfo)
	return info, ok
}
