package metrics

import (
	"time"
)

// MeasureReplayBackendQuery wraps a replay-cache durable-backend call with
// timing instrumentation.
// Usage:
//
//	defer metrics.MeasureReplayBackendQuery(m, "try_consume", "postgres")()
func MeasureReplayBackendQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveReplayBackendQuery(operation, backend, time.Since(start))
	}
}

// RecordReplayBackendQuery records a replay-cache backend query duration
// directly, when timing is already captured.
func RecordReplayBackendQuery(m *Metrics, operation, backend string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ObserveReplayBackendQuery(operation, backend, duration)
}
