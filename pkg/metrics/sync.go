package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fieldsync"

// SyncMetrics records outbox and submission activity. A nil *SyncMetrics
// (or one built without a registerer) drops every observation.
type SyncMetrics struct {
	submissions *prometheus.CounterVec
	captures    *prometheus.CounterVec
	drained     prometheus.Counter
	drainTime   *prometheus.HistogramVec
	pending     prometheus.Gauge
	online      prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Remote submission attempts by outcome and path (direct or drain).",
	}, []string{"path", "outcome"})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captures_total",
		Help:      "Captured records by result (sent or queued).",
	}, []string{"result"})
	drained := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drained_records_total",
		Help:      "Queued records confirmed by the remote during a drain.",
	})
	drainTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "drain_duration_seconds",
		Help:      "Duration of outbox drains in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_records",
		Help:      "Records waiting in the outbox.",
	})
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "online",
		Help:      "1 when the remote is believed reachable.",
	})
	reg.MustRegister(submissions, captures, drained, drainTime, pending, online)
	return &SyncMetrics{
		submissions: submissions,
		captures:    captures,
		drained:     drained,
		drainTime:   drainTime,
		pending:     pending,
		online:      online,
	}
}

// IncSubmission counts one submit attempt.
func (m *SyncMetrics) IncSubmission(path, outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(path), normalizeLabel(outcome)).Inc()
}

// IncCapture counts one capture by how it was handled.
func (m *SyncMetrics) IncCapture(result string) {
	if m == nil || m.captures == nil {
		return
	}
	m.captures.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveDrain records a finished drain.
func (m *SyncMetrics) ObserveDrain(duration time.Duration, processed int, err error) {
	if m == nil || m.drainTime == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.drainTime.WithLabelValues(result).Observe(duration.Seconds())
	if processed > 0 {
		m.drained.Add(float64(processed))
	}
}

// SetPending publishes the current outbox depth.
func (m *SyncMetrics) SetPending(n int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

// SetOnline publishes the connectivity flag.
func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil || m.online == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
