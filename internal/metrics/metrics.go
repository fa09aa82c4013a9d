// Package metrics is a small metrics registry with a Prometheus text
// exposition endpoint. The daemon registers counters, gauges and histograms
// for session, delivery and permission activity; scrapers read them from the
// /metrics HTTP handler.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType identifies the exposition type of a metric.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
	TypeSummary
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	case TypeSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Labels is a fixed label set attached to a metric at registration time.
type Labels map[string]string

// String renders the set as {k1="v1",k2="v2"} with sorted keys, or "" when
// empty.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, l[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Counter only goes up.
type Counter struct {
	name   string
	help   string
	labels Labels
	value  atomic.Uint64
}

func NewCounter(name, help string, labels Labels) *Counter {
	return &Counter{name: name, help: help, labels: labels}
}

func (c *Counter) Inc()            { c.value.Add(1) }
func (c *Counter) Add(v uint64)    { c.value.Add(v) }
func (c *Counter) Value() uint64   { return c.value.Load() }
func (c *Counter) Name() string    { return c.name }
func (c *Counter) Help() string    { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Gauge holds an instantaneous value.
type Gauge struct {
	name   string
	help   string
	labels Labels
	value  atomic.Int64
}

func NewGauge(name, help string, labels Labels) *Gauge {
	return &Gauge{name: name, help: help, labels: labels}
}

func (g *Gauge) Set(v int64)      { g.value.Store(v) }
func (g *Gauge) Inc()             { g.value.Add(1) }
func (g *Gauge) Dec()             { g.value.Add(-1) }
func (g *Gauge) Add(v int64)      { g.value.Add(v) }
func (g *Gauge) Value() int64     { return g.value.Load() }
func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Histogram accumulates observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  Labels
	buckets []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

// DefaultBuckets suit sub-second to ten-second latencies.
var DefaultBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// DurationBuckets extend DefaultBuckets up to a minute.
var DurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

func NewHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	bounds := make([]float64, len(buckets))
	copy(bounds, buckets)
	sort.Float64s(bounds)

	return &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: bounds,
		counts:  make([]uint64, len(bounds)+1), // trailing slot is +Inf
	}
}

// Observe records v into every bucket whose upper bound is >= v. Bucket
// bounds are inclusive, matching Prometheus le semantics.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	idx := sort.SearchFloat64s(h.buckets, v)
	if idx < len(h.buckets) && h.buckets[idx] == v {
		idx++
	}
	for i := idx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Timer starts a timer whose Stop records the elapsed time.
func (h *Histogram) Timer() *HistogramTimer {
	return &HistogramTimer{histogram: h, start: time.Now()}
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

type HistogramTimer struct {
	histogram *Histogram
	start     time.Time
}

func (t *HistogramTimer) Stop() time.Duration {
	d := time.Since(t.start)
	t.histogram.ObserveDuration(d)
	return d
}

// Registry holds metrics under a namespace/subsystem prefix. Registration is
// idempotent: registering an existing name and label set returns the
// existing metric, so the fully prefixed name plus labels is the identity.
type Registry struct {
	namespace string
	subsystem string

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func NewRegistry(namespace, subsystem string) *Registry {
	return &Registry{
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (r *Registry) fullName(name string) string {
	var parts []string
	if r.namespace != "" {
		parts = append(parts, r.namespace)
	}
	if r.subsystem != "" {
		parts = append(parts, r.subsystem)
	}
	return strings.Join(append(parts, name), "_")
}

// key distinguishes label variants of the same metric name.
func (r *Registry) key(name string, labels Labels) string {
	return r.fullName(name) + labels.String()
}

func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[r.key(name, labels)]; ok {
		return c
	}
	c := NewCounter(r.fullName(name), help, labels)
	r.counters[r.key(name, labels)] = c
	return c
}

func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gauges[r.key(name, labels)]; ok {
		return g
	}
	g := NewGauge(r.fullName(name), help, labels)
	r.gauges[r.key(name, labels)] = g
	return g
}

func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.histograms[r.key(name, labels)]; ok {
		return h
	}
	h := NewHistogram(r.fullName(name), help, labels, buckets)
	r.histograms[r.key(name, labels)] = h
	return h
}

// GetCounter looks up the unlabeled variant of name.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[r.key(name, nil)]
}

func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[r.key(name, nil)]
}

func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[r.key(name, nil)]
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WritePrometheus renders all metrics in text exposition format, sorted by
// name so scrapes are stable. Label variants of one name share a single
// HELP/TYPE header.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last string
	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		if c.name != last {
			fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
			fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
			last = c.name
		}
		fmt.Fprintf(w, "%s%s %d\n", c.name, c.labels, c.Value())
	}

	last = ""
	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		if g.name != last {
			fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)
			last = g.name
		}
		fmt.Fprintf(w, "%s%s %d\n", g.name, g.labels, g.Value())
	}

	last = ""
	for _, key := range sortedKeys(r.histograms) {
		writeHistogram(w, r.histograms[key], last)
		last = r.histograms[key].name
	}
	return nil
}

func writeHistogram(w io.Writer, h *Histogram, lastName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.name != lastName {
		fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help)
		fmt.Fprintf(w, "# TYPE %s histogram\n", h.name)
	}

	// The le label is appended to the fixed label set.
	open := h.labels.String()
	if open == "" {
		open = "{"
	} else {
		open = open[:len(open)-1] + ","
	}

	var cum uint64
	for i, bound := range h.buckets {
		cum += h.counts[i]
		fmt.Fprintf(w, "%s_bucket%sle=%q} %d\n", h.name, open, formatBound(bound), cum)
	}
	cum += h.counts[len(h.buckets)]
	fmt.Fprintf(w, "%s_bucket%sle=\"+Inf\"} %d\n", h.name, open, cum)
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels, h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels, h.count)
}

func formatBound(b float64) string {
	return strconv.FormatFloat(b, 'g', -1, 64)
}

// WriteJSON renders the same data as a JSON object keyed by metric name.
func (r *Registry) WriteJSON(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.counters)+len(r.gauges)+len(r.histograms))

	for name, c := range r.counters {
		out[name] = map[string]any{
			"type":   "counter",
			"help":   c.help,
			"labels": c.labels,
			"value":  c.Value(),
		}
	}
	for name, g := range r.gauges {
		out[name] = map[string]any{
			"type":   "gauge",
			"help":   g.help,
			"labels": g.labels,
			"value":  g.Value(),
		}
	}
	for name, h := range r.histograms {
		h.mu.Lock()
		buckets := make(map[string]uint64, len(h.buckets)+1)
		var cum uint64
		for i, bound := range h.buckets {
			cum += h.counts[i]
			buckets[formatBound(bound)] = cum
		}
		cum += h.counts[len(h.buckets)]
		buckets["+Inf"] = cum

		mean := 0.0
		if h.count > 0 {
			mean = h.sum / float64(h.count)
		}
		out[name] = map[string]any{
			"type":    "histogram",
			"help":    h.help,
			"labels":  h.labels,
			"buckets": buckets,
			"sum":     h.sum,
			"count":   h.count,
			"mean":    mean,
		}
		h.mu.Unlock()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Reset zeroes every metric's value. Metrics stay registered.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.counters {
		c.value.Store(0)
	}
	for _, g := range r.gauges {
		g.value.Store(0)
	}
	for _, h := range r.histograms {
		h.mu.Lock()
		h.sum = 0
		h.count = 0
		clear(h.counts)
		h.mu.Unlock()
	}
}

// HTTPHandler serves the registry; JSON when the client asks for it,
// Prometheus text otherwise.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			r.WriteJSON(w)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}

var defaultRegistry = NewRegistry("voxd", "")

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}
