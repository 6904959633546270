package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CedrosPay/server/internal/metrics"
	"github.com/go-chi/httprate"
)

// Config holds rate limiting configuration for the facilitator's public
// HTTP front door. The payment-verification middleware (C8) itself
// enforces no rate limiting of its own, per the concurrency model — this
// is strictly the facilitator's own ingress protection.
type Config struct {
	// Global rate limiting (across all callers)
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	// Per-payer rate limiting (identified by the wallet/payer address)
	PerPayerEnabled bool
	PerPayerLimit   int
	PerPayerWindow  time.Duration

	// Per-IP rate limiting (fallback when no payer address is present)
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// rateLimitResponse represents the JSON error response for rate limit exceeded.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns sensible default rate limits: generous enough to
// not restrict legitimate verify/settle traffic but enough to stop obvious
// spam against a facilitator.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  time.Minute,

		PerPayerEnabled: true,
		PerPayerLimit:   60,
		PerPayerWindow:  time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  time.Minute,
	}
}

// createRateLimitHandler creates a standardized rate limit handler function,
// shared across the global, per-payer, and per-IP limiters.
func createRateLimitHandler(
	limitType string,
	windowSeconds int,
	extractIdentifier func(*http.Request) string,
	metricsCollector *metrics.Metrics,
) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := "all"
		if extractIdentifier != nil {
			if id := extractIdentifier(r); id != "" {
				identifier = id
			}
		}

		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType, identifier)
		}

		var message string
		switch limitType {
		case "global":
			message = "Global rate limit exceeded. Please try again later."
		case "per_payer":
			if identifier != "" && identifier != "all" {
				message = fmt.Sprintf("Rate limit exceeded for payer %s. Please try again later.", identifier)
			} else {
				message = "Rate limit exceeded. Please try again later."
			}
		case "per_ip":
			message = "IP rate limit exceeded. Please try again later."
		default:
			message = "Rate limit exceeded. Please try again later."
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// GlobalLimiter caps total request volume across all callers.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(
			createRateLimitHandler("global", int(cfg.GlobalWindow.Seconds()), nil, cfg.Metrics),
		),
	)
}

// PayerLimiter rate-limits by the payer wallet address presented in the
// request, falling back to IP-based limiting when no payer is identified.
func PayerLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerPayerEnabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		cfg.PerPayerLimit,
		cfg.PerPayerWindow,
		httprate.WithKeyFuncs(payerKeyExtractor),
		httprate.WithLimitHandler(
			createRateLimitHandler("per_payer", int(cfg.PerPayerWindow.Seconds()), extractPayerFromRequest, cfg.Metrics),
		),
	)
}

// IPLimiter is the fallback rate limiter keyed purely on remote address.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(
			createRateLimitHandler("per_ip", int(cfg.PerIPWindow.Seconds()), func(r *http.Request) string { return r.RemoteAddr }, cfg.Metrics),
		),
	)
}

// payerKeyExtractor is an httprate.KeyFunc that extracts the payer wallet
// address from the request, falling back to IP-based limiting.
func payerKeyExtractor(r *http.Request) (string, error) {
	if payer := extractPayerFromRequest(r); payer != "" {
		return "payer:" + payer, nil
	}
	return httprate.KeyByIP(r)
}

// extractPayerFromRequest looks for an explicit payer identification
// header. The X-PAYMENT body itself is not parsed here — doing so would
// require the full proof decode on every request, which is exactly the
// per-request cost the rate limiter sits in front of.
func extractPayerFromRequest(r *http.Request) string {
	if payer := r.Header.Get("X-Payer"); payer != "" {
		return payer
	}
	if wallet := r.URL.Query().Get("payer"); wallet != "" {
		return wallet
	}
	return ""
}
