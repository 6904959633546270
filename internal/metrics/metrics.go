package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the facilitator and origin-side
// payment middleware.
type Metrics struct {
	// Payment verification metrics
	PaymentsTotal        *prometheus.CounterVec
	PaymentsSuccessTotal *prometheus.CounterVec
	PaymentsFailedTotal  *prometheus.CounterVec
	PaymentAmountTotal   *prometheus.CounterVec
	PaymentDuration      *prometheus.HistogramVec

	// RPC call metrics (ledger RPC, §4.3 steps 2-5)
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	// Channel claim metrics (§4.5)
	ChannelClaimsTotal    *prometheus.CounterVec
	ChannelClaimIncrement *prometheus.CounterVec

	// Rate limiting metrics (facilitator ingress, C9)
	RateLimitHitsTotal *prometheus.CounterVec

	// Replay cache metrics (C4)
	ReplayBackendQueryDuration *prometheus.HistogramVec
	ReplayPurgeRunsTotal       prometheus.Counter
	ReplayPurgeRecordsDeleted  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_payments_total",
				Help: "Total number of payment verification attempts",
			},
			[]string{"method", "resource"},
		),
		PaymentsSuccessTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_payments_success_total",
				Help: "Total number of successful payment verifications",
			},
			[]string{"method", "resource"},
		),
		PaymentsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_payments_failed_total",
				Help: "Total number of failed payment verifications",
			},
			[]string{"method", "resource", "reason"},
		),
		PaymentAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_payment_amount_total",
				Help: "Total amount verified, in asset base units",
			},
			[]string{"method", "token"},
		),
		PaymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_payment_duration_seconds",
				Help:    "Time taken to verify a payment (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "resource"},
		),

		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_ledger_rpc_calls_total",
				Help: "Total number of RPC calls to the ledger",
			},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_ledger_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls to the ledger (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_ledger_rpc_errors_total",
				Help: "Total number of ledger RPC errors",
			},
			[]string{"method", "network", "error_type"},
		),

		ChannelClaimsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_channel_claims_total",
				Help: "Total number of channel claim verifications",
			},
			[]string{"status"},
		),
		ChannelClaimIncrement: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_channel_claim_increment_total",
				Help: "Total incremental amount accepted across channel claims, in asset base units",
			},
			[]string{"network"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type", "identifier"},
		),

		ReplayBackendQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_replay_backend_query_duration_seconds",
				Help:    "Replay cache backend query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		ReplayPurgeRunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "x402_replay_purge_runs_total",
				Help: "Total number of replay-cache purge sweeps",
			},
		),
		ReplayPurgeRecordsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "x402_replay_purge_records_deleted_total",
				Help: "Total number of replay entries deleted by purge sweeps",
			},
		),
	}
}

// ObservePayment records a payment verification attempt and its outcome.
func (m *Metrics) ObservePayment(method, resource string, success bool, duration time.Duration, amount int64, token string) {
	m.PaymentsTotal.WithLabelValues(method, resource).Inc()
	if success {
		m.PaymentsSuccessTotal.WithLabelValues(method, resource).Inc()
		m.PaymentAmountTotal.WithLabelValues(method, token).Add(float64(amount))
	}
	m.PaymentDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// ObservePaymentFailure records a failed payment verification with reason.
func (m *Metrics) ObservePaymentFailure(method, resource, reason string) {
	m.PaymentsFailedTotal.WithLabelValues(method, resource, reason).Inc()
}

// ObserveRPCCall records an RPC call to the ledger.
func (m *Metrics) ObserveRPCCall(method, network string, duration time.Duration, err error) {
	m.RPCCallsTotal.WithLabelValues(method, network).Inc()
	m.RPCCallDuration.WithLabelValues(method, network).Observe(duration.Seconds())

	if err != nil {
		errorType := "unknown"
		if errStr := err.Error(); errStr != "" {
			switch {
			case contains(errStr, "timeout"):
				errorType = "timeout"
			case contains(errStr, "rate limit"):
				errorType = "rate_limit"
			case contains(errStr, "connection"):
				errorType = "connection"
			case contains(errStr, "not found"):
				errorType = "not_found"
			default:
				errorType = "other"
			}
		}
		m.RPCErrorsTotal.WithLabelValues(method, network, errorType).Inc()
	}
}

// ObserveChannelClaim records a channel claim verification outcome and, on
// success, the incremental amount it accepted toward the channel's total.
func (m *Metrics) ObserveChannelClaim(status, network string, incrementAccepted int64) {
	m.ChannelClaimsTotal.WithLabelValues(status).Inc()
	if incrementAccepted > 0 {
		m.ChannelClaimIncrement.WithLabelValues(network).Add(float64(incrementAccepted))
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}

// ObserveReplayBackendQuery records a replay-cache durable-backend query.
func (m *Metrics) ObserveReplayBackendQuery(operation, backend string, duration time.Duration) {
	m.ReplayBackendQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// ObserveReplayPurge records a replay-cache purge sweep.
func (m *Metrics) ObserveReplayPurge(recordsDeleted int64) {
	m.ReplayPurgeRunsTotal.Inc()
	m.ReplayPurgeRecordsDeleted.Add(float64(recordsDeleted))
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && s[:len(substr)] == substr ||
		len(s) > len(substr) && contains(s[1:], substr)
}
