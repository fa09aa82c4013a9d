package metrics

import (
	"time"
)

// VoxdMetrics holds all voxd-specific metrics.
type VoxdMetrics struct {
	registry *Registry

	// Counters
	SessionsTotal         *Counter
	SessionsDiscarded     *Counter
	SessionsCancelled     *Counter
	DeliveriesTotal       *Counter
	DeliveryFailuresTotal *Counter
	StrategyDeliveries    map[string]*Counter
	DeliveryFallbacks     *Counter
	ClipboardRestores     *Counter
	TapRestartsTotal      *Counter
	PermissionDenials     *Counter
	ErrorsTotal           *Counter

	// Gauges
	SessionActive     *Gauge
	Paused            *Gauge
	PermissionGranted *Gauge
	HistoryTranscripts *Gauge
	UptimeSeconds     *Gauge
	LastDeliveryTs    *Gauge

	// Histograms
	SessionDuration      *Histogram
	TranscriptionLatency *Histogram
	DeliveryDuration     *Histogram
	DeliveredChars       *Histogram
}

// startTime records when metrics were initialized.
var startTime = time.Now()

// NewVoxdMetrics creates and registers all voxd metrics.
func NewVoxdMetrics(registry *Registry) *VoxdMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &VoxdMetrics{
		registry: registry,

		// Counters
		SessionsTotal: registry.RegisterCounter(
			"sessions_total",
			"Total number of recording sessions started",
			nil,
		),
		SessionsDiscarded: registry.RegisterCounter(
			"sessions_discarded_total",
			"Total number of sessions discarded before transcription",
			nil,
		),
		SessionsCancelled: registry.RegisterCounter(
			"sessions_cancelled_total",
			"Total number of sessions cancelled by the user",
			nil,
		),
		DeliveriesTotal: registry.RegisterCounter(
			"deliveries_total",
			"Total number of successful text deliveries",
			nil,
		),
		DeliveryFailuresTotal: registry.RegisterCounter(
			"delivery_failures_total",
			"Total number of deliveries that failed every strategy",
			nil,
		),
		DeliveryFallbacks: registry.RegisterCounter(
			"delivery_fallbacks_total",
			"Total number of deliveries that needed more than one strategy",
			nil,
		),
		ClipboardRestores: registry.RegisterCounter(
			"clipboard_restores_total",
			"Total number of clipboard restorations after paste delivery",
			nil,
		),
		TapRestartsTotal: registry.RegisterCounter(
			"tap_restarts_total",
			"Total number of input tap restarts",
			nil,
		),
		PermissionDenials: registry.RegisterCounter(
			"permission_denials_total",
			"Total number of observed permission revocations",
			nil,
		),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total",
			"Total number of errors",
			nil,
		),

		// Gauges
		SessionActive: registry.RegisterGauge(
			"session_active",
			"Whether a recording session is currently active (0 or 1)",
			nil,
		),
		Paused: registry.RegisterGauge(
			"paused",
			"Whether dictation is currently paused (0 or 1)",
			nil,
		),
		PermissionGranted: registry.RegisterGauge(
			"permission_granted",
			"Whether input monitoring permission is granted (0 or 1)",
			nil,
		),
		HistoryTranscripts: registry.RegisterGauge(
			"history_transcripts",
			"Number of transcripts retained in history",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the daemon has been running",
			nil,
		),
		LastDeliveryTs: registry.RegisterGauge(
			"last_delivery_timestamp",
			"Unix timestamp of the last successful delivery",
			nil,
		),

		// Histograms
		SessionDuration: registry.RegisterHistogram(
			"session_duration_seconds",
			"Duration of recording sessions in seconds",
			nil,
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		),
		TranscriptionLatency: registry.RegisterHistogram(
			"transcription_latency_seconds",
			"Time from session stop to transcript availability in seconds",
			nil,
			DurationBuckets,
		),
		DeliveryDuration: registry.RegisterHistogram(
			"delivery_duration_seconds",
			"Duration of text delivery in seconds",
			nil,
			DurationBuckets,
		),
		DeliveredChars: registry.RegisterHistogram(
			"delivered_chars",
			"Number of characters per delivered transcript",
			nil,
			[]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		),
	}

	m.StrategyDeliveries = make(map[string]*Counter)
	for _, strategy := range []string{"accessibility", "clipboard", "typing"} {
		m.StrategyDeliveries[strategy] = registry.RegisterCounter(
			"strategy_deliveries_total",
			"Successful text deliveries by strategy",
			Labels{"strategy": strategy},
		)
	}

	return m
}

// SessionStarted records a session start.
func (m *VoxdMetrics) SessionStarted() {
	m.SessionsTotal.Inc()
	m.SessionActive.Set(1)
}

// SessionEnded records a session end with its recording duration.
func (m *VoxdMetrics) SessionEnded(duration time.Duration) {
	m.SessionActive.Set(0)
	m.SessionDuration.ObserveDuration(duration)
}

// SessionDiscarded records a session dropped below the minimum hold time.
func (m *VoxdMetrics) SessionDiscarded() {
	m.SessionsDiscarded.Inc()
	m.SessionActive.Set(0)
}

// SessionCancelled records a session cancelled by the user.
func (m *VoxdMetrics) SessionCancelled() {
	m.SessionsCancelled.Inc()
	m.SessionActive.Set(0)
}

// RecordTranscription records transcription latency.
func (m *VoxdMetrics) RecordTranscription(duration time.Duration) {
	m.TranscriptionLatency.ObserveDuration(duration)
}

// RecordDelivery records a delivery attempt. strategy names the strategy
// that succeeded and is empty on failure.
func (m *VoxdMetrics) RecordDelivery(strategy string, duration time.Duration, chars int, attempts int, success bool) {
	m.DeliveryDuration.ObserveDuration(duration)
	if !success {
		m.DeliveryFailuresTotal.Inc()
		m.ErrorsTotal.Inc()
		return
	}
	m.DeliveriesTotal.Inc()
	if c, ok := m.StrategyDeliveries[strategy]; ok {
		c.Inc()
	}
	m.DeliveredChars.Observe(float64(chars))
	m.LastDeliveryTs.Set(time.Now().Unix())
	if attempts > 1 {
		m.DeliveryFallbacks.Inc()
	}
}

// StartDeliveryTimer returns a timer for delivery operations.
func (m *VoxdMetrics) StartDeliveryTimer() *HistogramTimer {
	return m.DeliveryDuration.Timer()
}

// RecordClipboardRestore records a clipboard restoration.
func (m *VoxdMetrics) RecordClipboardRestore() {
	m.ClipboardRestores.Inc()
}

// RecordTapRestart records an input tap restart.
func (m *VoxdMetrics) RecordTapRestart() {
	m.TapRestartsTotal.Inc()
}

// SetPaused records the paused state.
func (m *VoxdMetrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}

// SetPermission records the current permission state.
func (m *VoxdMetrics) SetPermission(granted bool) {
	if granted {
		m.PermissionGranted.Set(1)
	} else {
		m.PermissionGranted.Set(0)
		m.PermissionDenials.Inc()
	}
}

// SetHistoryTranscripts sets the number of retained transcripts.
func (m *VoxdMetrics) SetHistoryTranscripts(count int64) {
	m.HistoryTranscripts.Set(count)
}

// RecordError records an error.
func (m *VoxdMetrics) RecordError() {
	m.ErrorsTotal.Inc()
}

// UpdateUptime updates the uptime metric.
func (m *VoxdMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics.
func (m *VoxdMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"sessions_total":           m.SessionsTotal.Value(),
		"sessions_discarded_total": m.SessionsDiscarded.Value(),
		"sessions_cancelled_total": m.SessionsCancelled.Value(),
		"deliveries_total":         m.DeliveriesTotal.Value(),
		"delivery_failures_total":  m.DeliveryFailuresTotal.Value(),
		"clipboard_restores_total": m.ClipboardRestores.Value(),
		"tap_restarts_total":       m.TapRestartsTotal.Value(),
		"errors_total":             m.ErrorsTotal.Value(),
		"session_active":           m.SessionActive.Value(),
		"paused":                   m.Paused.Value(),
		"permission_granted":       m.PermissionGranted.Value(),
		"uptime_seconds":           m.UptimeSeconds.Value(),
		"session_avg_seconds":      m.SessionDuration.Mean(),
		"delivery_avg_seconds":     m.DeliveryDuration.Mean(),
	}
}

// Global voxd metrics instance.
var defaultVoxdMetrics *VoxdMetrics

// GetMetrics returns the global voxd metrics instance.
func GetMetrics() *VoxdMetrics {
	if defaultVoxdMetrics == nil {
		defaultVoxdMetrics = NewVoxdMetrics(Default())
	}
	return defaultVoxdMetrics
}

// InitMetrics initializes the global voxd metrics with a custom registry.
func InitMetrics(registry *Registry) *VoxdMetrics {
	defaultVoxdMetrics = NewVoxdMetrics(registry)
	return defaultVoxdMetrics
}
