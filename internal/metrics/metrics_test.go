package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "A test counter", nil)
	assert.Equal(t, uint64(0), c.Value())

	c.Inc()
	c.Add(5)
	assert.Equal(t, uint64(6), c.Value())
	assert.Equal(t, TypeCounter, c.Type())
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge", nil)

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Add(-3)
	assert.Equal(t, int64(7), g.Value())
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_seconds", "A test histogram", nil, []float64{0.1, 1, 10})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 55.55, h.Sum(), 0.001)
	assert.InDelta(t, 13.8875, h.Mean(), 0.001)
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("timed_seconds", "Timed", nil, DurationBuckets)

	timer := h.Timer()
	time.Sleep(5 * time.Millisecond)
	d := timer.Stop()

	assert.Equal(t, uint64(1), h.Count())
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
}

func TestRegistryFullName(t *testing.T) {
	r := NewRegistry("voxd", "delivery")
	c := r.RegisterCounter("attempts_total", "Attempts", nil)
	assert.Equal(t, "voxd_delivery_attempts_total", c.Name())

	r2 := NewRegistry("voxd", "")
	g := r2.RegisterGauge("paused", "Paused", nil)
	assert.Equal(t, "voxd_paused", g.Name())
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry("voxd", "")
	a := r.RegisterCounter("sessions_total", "Sessions", nil)
	b := r.RegisterCounter("sessions_total", "Sessions", nil)
	assert.Same(t, a, b)

	a.Inc()
	assert.Equal(t, uint64(1), r.GetCounter("sessions_total").Value())
}

func TestRegistryWritePrometheus(t *testing.T) {
	r := NewRegistry("voxd", "")
	r.RegisterCounter("deliveries_total", "Total deliveries", nil).Add(3)
	r.RegisterGauge("session_active", "Active session", nil).Set(1)
	h := r.RegisterHistogram("delivery_duration_seconds", "Delivery duration", nil, []float64{0.1, 1})
	h.Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE voxd_deliveries_total counter")
	assert.Contains(t, out, "voxd_deliveries_total 3")
	assert.Contains(t, out, "voxd_session_active 1")
	assert.Contains(t, out, "voxd_delivery_duration_seconds_count 1")
	assert.Contains(t, out, `le="+Inf"`)
}

func TestRegistryLabelsRendered(t *testing.T) {
	r := NewRegistry("voxd", "")
	r.RegisterCounter("tap_restarts_total", "Tap restarts", Labels{"reason": "timeout"}).Inc()

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `voxd_tap_restarts_total{reason="timeout"} 1`)
}

func TestVoxdMetricsSessionLifecycle(t *testing.T) {
	m := NewVoxdMetrics(NewRegistry("voxd", ""))

	m.SessionStarted()
	assert.Equal(t, int64(1), m.SessionActive.Value())

	m.SessionEnded(3 * time.Second)
	assert.Equal(t, int64(0), m.SessionActive.Value())
	assert.Equal(t, uint64(1), m.SessionsTotal.Value())
	assert.Equal(t, uint64(1), m.SessionDuration.Count())

	m.SessionStarted()
	m.SessionDiscarded()
	assert.Equal(t, uint64(1), m.SessionsDiscarded.Value())
	assert.Equal(t, int64(0), m.SessionActive.Value())

	m.SessionStarted()
	m.SessionCancelled()
	assert.Equal(t, uint64(1), m.SessionsCancelled.Value())
}

func TestVoxdMetricsDelivery(t *testing.T) {
	m := NewVoxdMetrics(NewRegistry("voxd", ""))

	m.RecordDelivery("clipboard", 200*time.Millisecond, 42, 1, true)
	assert.Equal(t, uint64(1), m.DeliveriesTotal.Value())
	assert.Equal(t, uint64(1), m.StrategyDeliveries["clipboard"].Value())
	assert.Equal(t, uint64(0), m.StrategyDeliveries["typing"].Value())
	assert.Equal(t, uint64(0), m.DeliveryFallbacks.Value())
	assert.NotZero(t, m.LastDeliveryTs.Value())

	m.RecordDelivery("typing", 400*time.Millisecond, 10, 2, true)
	assert.Equal(t, uint64(1), m.DeliveryFallbacks.Value())

	m.RecordDelivery("", time.Second, 0, 3, false)
	assert.Equal(t, uint64(1), m.DeliveryFailuresTotal.Value())
	assert.Equal(t, uint64(1), m.ErrorsTotal.Value())
	assert.Equal(t, uint64(2), m.DeliveriesTotal.Value())
}

func TestVoxdMetricsPermission(t *testing.T) {
	m := NewVoxdMetrics(NewRegistry("voxd", ""))

	m.SetPermission(true)
	assert.Equal(t, int64(1), m.PermissionGranted.Value())
	assert.Equal(t, uint64(0), m.PermissionDenials.Value())

	m.SetPermission(false)
	assert.Equal(t, int64(0), m.PermissionGranted.Value())
	assert.Equal(t, uint64(1), m.PermissionDenials.Value())
}

func TestVoxdMetricsSnapshot(t *testing.T) {
	m := NewVoxdMetrics(NewRegistry("voxd", ""))
	m.SessionStarted()
	m.RecordDelivery("accessibility", 100*time.Millisecond, 20, 1, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap["sessions_total"])
	assert.Equal(t, uint64(1), snap["deliveries_total"])
	assert.Contains(t, snap, "uptime_seconds")
	assert.Contains(t, snap, "delivery_avg_seconds")
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry("voxd", "")
	r.RegisterCounter("errors_total", "Errors", nil).Inc()
	r.RegisterGauge("session_active", "Active", nil).Set(1)
	r.Reset()

	assert.Equal(t, uint64(0), r.GetCounter("errors_total").Value())
	assert.Equal(t, int64(0), r.GetGauge("session_active").Value())
}
