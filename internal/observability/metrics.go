package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors emitted by the billing engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	PaymentsRegistered  *prometheus.CounterVec
	PendingCreated      prometheus.Counter
	PaymentsDeleted     prometheus.Counter
	CleanupDeleted      prometheus.Counter
	CleanupUpdated      prometheus.Counter
	CleanupFailed       prometheus.Counter
	CleanupDuration     prometheus.Histogram
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		PaymentsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallybook",
			Subsystem: "payments",
			Name:      "registered_total",
			Help:      "Payment registrations, by whether an open obligation was settled or a new paid record was created.",
		}, []string{"outcome"}),
		PendingCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallybook",
			Subsystem: "payments",
			Name:      "pending_created_total",
			Help:      "Pending payments created for upcoming periods.",
		}),
		PaymentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallybook",
			Subsystem: "payments",
			Name:      "deleted_total",
			Help:      "Payments deleted through the API.",
		}),
		CleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallybook",
			Subsystem: "cleanup",
			Name:      "deleted_total",
			Help:      "Duplicate payments removed by cleanup.",
		}),
		CleanupUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallybook",
			Subsystem: "cleanup",
			Name:      "updated_total",
			Help:      "Payment statuses corrected by cleanup.",
		}),
		CleanupFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tallybook",
			Subsystem: "cleanup",
			Name:      "failed_total",
			Help:      "Cleanup actions that failed and were skipped.",
		}),
		CleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tallybook",
			Subsystem: "cleanup",
			Name:      "duration_seconds",
			Help:      "Duration of cleanup passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tallybook",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.PaymentsRegistered,
		m.PendingCreated,
		m.PaymentsDeleted,
		m.CleanupDeleted,
		m.CleanupUpdated,
		m.CleanupFailed,
		m.CleanupDuration,
		m.HTTPRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveRegistration(outcome string) {
	if m == nil {
		return
	}
	m.PaymentsRegistered.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePendingCreated() {
	if m == nil {
		return
	}
	m.PendingCreated.Inc()
}

func (m *Metrics) ObserveDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PaymentsDeleted.Add(float64(n))
}

func (m *Metrics) ObserveCleanup(deleted, updated, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.CleanupDeleted.Add(float64(deleted))
	m.CleanupUpdated.Add(float64(updated))
	m.CleanupFailed.Add(float64(failed))
	m.CleanupDuration.Observe(seconds)
}
