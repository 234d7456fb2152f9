// Package metrics exposes Prometheus counters for the review pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "reviewleopard"
	Subsystem = "pipeline"
)

// Metrics is safe to use through a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	TriggersTotal        *prometheus.CounterVec
	RequestsScheduled    *prometheus.CounterVec
	DeliveriesTotal      *prometheus.CounterVec
	DispatchTickDuration prometheus.Histogram
	StaleJobsTotal       *prometheus.CounterVec
	TrackingEventsTotal  *prometheus.CounterVec
	RemindersTotal       *prometheus.CounterVec
	TelemetryDropped     prometheus.Counter
}

// New registers every pipeline metric on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TriggersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "triggers_total",
			Help: "Trigger events received, by source and outcome",
		}, []string{"source", "outcome"}),
		RequestsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "review_requests_scheduled_total",
			Help: "Review requests scheduled, by channel",
		}, []string{"channel"}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "deliveries_total",
			Help: "Dispatcher delivery attempts, by channel and outcome",
		}, []string{"channel", "outcome"}),
		DispatchTickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name:    "dispatch_tick_duration_seconds",
			Help:    "Duration of a dispatcher tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		StaleJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "stale_jobs_total",
			Help: "Stale running jobs, by action taken (requeued or abandoned)",
		}, []string{"action"}),
		TrackingEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "tracking_events_total",
			Help: "Tracking callbacks, by kind and whether state advanced",
		}, []string{"kind", "advanced"}),
		RemindersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "reminders_total",
			Help: "Recovery sweep reminders, by outcome",
		}, []string{"outcome"}),
		TelemetryDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: Subsystem,
			Name: "telemetry_dropped_total",
			Help: "Telemetry events that could not be persisted",
		}),
	}
}

func (m *Metrics) RecordTrigger(source, outcome string) {
	if m == nil {
		return
	}
	m.TriggersTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordScheduled(channel string) {
	if m == nil {
		return
	}
	m.RequestsScheduled.WithLabelValues(channel).Inc()
}

func (m *Metrics) RecordDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.DispatchTickDuration.Observe(seconds)
}

func (m *Metrics) RecordStale(action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.StaleJobsTotal.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) RecordTracking(kind string, advanced bool) {
	if m == nil {
		return
	}
	label := "false"
	if advanced {
		label = "true"
	}
	m.TrackingEventsTotal.WithLabelValues(kind, label).Inc()
}

func (m *Metrics) RecordReminder(outcome string) {
	if m == nil {
		return
	}
	m.RemindersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTelemetryDropped() {
	if m == nil {
		return
	}
	m.TelemetryDropped.Inc()
}
