package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the chat core. A nil *Metrics records nothing.
type Metrics struct {
	participants  prometheus.Gauge
	registrations prometheus.Counter
	evictions     *prometheus.CounterVec
	messages      *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	storageErrors *prometheus.CounterVec
}

// NewMetrics registers the chat collectors on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batepapo_participants_active",
			Help: "Participants currently registered.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batepapo_registrations_total",
			Help: "Successful participant registrations.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batepapo_evictions_total",
			Help: "Participants removed, grouped by reason.",
		}, []string{"reason"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batepapo_messages_total",
			Help: "Messages appended to the log, grouped by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batepapo_rejected_total",
			Help: "Operations rejected by the core, grouped by reason.",
		}, []string{"reason"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batepapo_sweep_duration_seconds",
			Help:    "Duration of presence sweeps.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batepapo_storage_errors_total",
			Help: "Storage failures grouped by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.participants,
		m.registrations,
		m.evictions,
		m.messages,
		m.rejected,
		m.sweepDuration,
		m.storageErrors,
	)
	return m
}

func (m *Metrics) recordRegistration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
	m.participants.Inc()
}

func (m *Metrics) recordEviction(reason string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(reason).Inc()
	m.participants.Dec()
}

func (m *Metrics) setParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}

func (m *Metrics) recordMessage(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeSweep(dur time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(dur.Seconds())
}

func (m *Metrics) recordStorageError(kind string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(kind).Inc()
}
