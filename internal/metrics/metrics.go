package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeFallback = "cache_fallback"
	OutcomeAborted  = "aborted"
)

// SyncMetrics records remote calls and reconciliation passes.
type SyncMetrics struct {
	remoteDuration *prometheus.HistogramVec
	remoteCalls    *prometheus.CounterVec
	syncPasses     *prometheus.CounterVec
	expiredParties prometheus.Counter
}

// NewSyncMetrics registers the collectors on the provided registerer. A nil
// registerer yields a recorder that drops everything.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	remoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Duration of backend requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	remoteCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_requests_total",
		Help: "Backend requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
	syncPasses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_passes_total",
		Help: "Refresh passes by engine and outcome.",
	}, []string{"engine", "outcome"})
	expiredParties := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parties_expired_total",
		Help: "Parties force-closed by the expiry sweep.",
	})
	reg.MustRegister(remoteDuration, remoteCalls, syncPasses, expiredParties)
	return &SyncMetrics{
		remoteDuration: remoteDuration,
		remoteCalls:    remoteCalls,
		syncPasses:     syncPasses,
		expiredParties: expiredParties,
	}
}

func (m *SyncMetrics) ObserveRemote(endpoint, outcome string, duration time.Duration) {
	if m == nil || m.remoteCalls == nil {
		return
	}
	endpoint = normalizeLabel(endpoint)
	m.remoteCalls.WithLabelValues(endpoint, normalizeLabel(outcome)).Inc()
	if duration > 0 {
		m.remoteDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

func (m *SyncMetrics) IncSync(engine, outcome string) {
	if m == nil || m.syncPasses == nil {
		return
	}
	m.syncPasses.WithLabelValues(normalizeLabel(engine), normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) AddExpired(n int) {
	if m == nil || m.expiredParties == nil || n <= 0 {
		return
	}
	m.expiredParties.Add(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
