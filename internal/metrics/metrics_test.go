package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("metrics collector should not be nil")
	}
	if m.PaymentsTotal == nil {
		t.Error("PaymentsTotal should be initialized")
	}
	if m.PaymentsSuccessTotal == nil {
		t.Error("PaymentsSuccessTotal should be initialized")
	}
	if m.PaymentsFailedTotal == nil {
		t.Error("PaymentsFailedTotal should be initialized")
	}
	if m.PaymentAmountTotal == nil {
		t.Error("PaymentAmountTotal should be initialized")
	}
	if m.PaymentDuration == nil {
		t.Error("PaymentDuration should be initialized")
	}
	if m.RPCCallsTotal == nil {
		t.Error("RPCCallsTotal should be initialized")
	}
	if m.RPCCallDuration == nil {
		t.Error("RPCCallDuration should be initialized")
	}
	if m.RPCErrorsTotal == nil {
		t.Error("RPCErrorsTotal should be initialized")
	}
	if m.ChannelClaimsTotal == nil {
		t.Error("ChannelClaimsTotal should be initialized")
	}
	if m.ReplayBackendQueryDuration == nil {
		t.Error("ReplayBackendQueryDuration should be initialized")
	}
}

func TestObservePayment(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObservePayment("x402", "test-resource", true, 1*time.Second, 100, "USDC")

	count := promtest.ToFloat64(m.PaymentsTotal.WithLabelValues("x402", "test-resource"))
	if count != 1 {
		t.Errorf("expected 1 payment attempt, got %.0f", count)
	}

	successCount := promtest.ToFloat64(m.PaymentsSuccessTotal.WithLabelValues("x402", "test-resource"))
	if successCount != 1 {
		t.Errorf("expected 1 successful payment, got %.0f", successCount)
	}

	amount := promtest.ToFloat64(m.PaymentAmountTotal.WithLabelValues("x402", "USDC"))
	if amount != 100 {
		t.Errorf("expected payment amount 100, got %.0f", amount)
	}
}

func TestObservePaymentFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObservePaymentFailure("x402", "test-resource", "insufficient_funds")

	count := promtest.ToFloat64(m.PaymentsFailedTotal.WithLabelValues("x402", "test-resource", "insufficient_funds"))
	if count != 1 {
		t.Errorf("expected 1 failed payment, got %.0f", count)
	}
}

func TestObserveRPCCall(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		network    string
		duration   time.Duration
		err        error
		wantCalls  float64
		wantErrors float64
	}{
		{
			name:      "successful RPC call",
			method:    "getTransaction",
			network:   "mainnet-beta",
			duration:  100 * time.Millisecond,
			err:       nil,
			wantCalls: 1,
		},
		{
			name:       "failed RPC call with connection error",
			method:     "getTransaction",
			network:    "mainnet-beta",
			duration:   100 * time.Millisecond,
			err:        &testError{msg: "connection reset"},
			wantCalls:  1,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := prometheus.NewRegistry()
			m := New(registry)

			m.ObserveRPCCall(tt.method, tt.network, tt.duration, tt.err)

			calls := promtest.ToFloat64(m.RPCCallsTotal.WithLabelValues(tt.method, tt.network))
			if calls != tt.wantCalls {
				t.Errorf("expected %.0f RPC calls, got %.0f", tt.wantCalls, calls)
			}

			if tt.err != nil {
				errors := promtest.ToFloat64(m.RPCErrorsTotal.WithLabelValues(tt.method, tt.network, "connection"))
				if errors != tt.wantErrors {
					t.Errorf("expected %.0f RPC errors, got %.0f", tt.wantErrors, errors)
				}
			}
		})
	}
}

func TestObserveChannelClaim(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveChannelClaim("valid", "solana", 50000)

	count := promtest.ToFloat64(m.ChannelClaimsTotal.WithLabelValues("valid"))
	if count != 1 {
		t.Errorf("expected 1 channel claim, got %.0f", count)
	}
	increment := promtest.ToFloat64(m.ChannelClaimIncrement.WithLabelValues("solana"))
	if increment != 50000 {
		t.Errorf("expected increment 50000, got %.0f", increment)
	}
}

func TestObserveRateLimit(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRateLimit("per_payer", "payer123")

	hits := promtest.ToFloat64(m.RateLimitHitsTotal.WithLabelValues("per_payer", "payer123"))
	if hits != 1 {
		t.Errorf("expected 1 rate limit hit, got %.0f", hits)
	}
}

func TestObserveReplayBackendQuery(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveReplayBackendQuery("try_consume", "postgres", 5*time.Millisecond)

	if m.ReplayBackendQueryDuration == nil {
		t.Error("ReplayBackendQueryDuration should be initialized")
	}
}

func TestObserveReplayPurge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveReplayPurge(1500)

	runs := promtest.ToFloat64(m.ReplayPurgeRunsTotal)
	if runs != 1 {
		t.Errorf("expected 1 purge run, got %.0f", runs)
	}
	deleted := promtest.ToFloat64(m.ReplayPurgeRecordsDeleted)
	if deleted != 1500 {
		t.Errorf("expected 1500 records deleted, got %.0f", deleted)
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
