package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDelivery("sms", "sent")
	m.RecordDelivery("sms", "sent")
	m.RecordStale("requeued", 3)
	m.RecordStale("abandoned", 0)
	m.RecordTracking("open", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("sms", "sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StaleJobsTotal.WithLabelValues("requeued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackingEventsTotal.WithLabelValues("open", "true")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTrigger("manual", "scheduled")
		m.RecordDelivery("email", "failed")
		m.ObserveTick(1)
		m.RecordTelemetryDropped()
	})
}
