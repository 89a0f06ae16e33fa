package trace

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a counter/histogram/gauge surface; HookSet does not report
// through it. NoopMetrics() returns an implementation that discards every
// call.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// NoopMetrics returns a Metrics that discards everything.
func NoopMetrics() Metrics { return noopMetrics{} }

// PrometheusMetrics adapts Metrics onto client_golang, namespacing every
// series under "rkh".
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	reg        prometheus.Registerer
}

// NewPrometheusMetrics constructs a Metrics backed by reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		reg:        reg,
	}
}

func (m *PrometheusMetrics) IncCounter(name string, value float64, labels map[string]string) {
	keys, vals := splitLabels(labels)
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "rkh",
			Name:      name,
			Help:      name,
		}, keys)
		m.reg.MustRegister(vec)
		m.counters[name] = vec
	}
	vec.WithLabelValues(vals...).Add(value)
}

func (m *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	keys, vals := splitLabels(labels)
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{ //nolint:exhaustruct
			Namespace: "rkh",
			Name:      name,
			Help:      name,
			Buckets:   prometheus.DefBuckets,
		}, keys)
		m.reg.MustRegister(vec)
		m.histograms[name] = vec
	}
	vec.WithLabelValues(vals...).Observe(value)
}

func (m *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
	keys, vals := splitLabels(labels)
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{ //nolint:exhaustruct
			Namespace: "rkh",
			Name:      name,
			Help:      name,
		}, keys)
		m.reg.MustRegister(vec)
		m.gauges[name] = vec
	}
	vec.WithLabelValues(vals...).Set(value)
}

// splitLabels sorts label keys so the same metric name always yields the
// same key/value ordering, regardless of map iteration order.
func splitLabels(labels map[string]string) (keys, vals []string) {
	keys = make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals = make([]string, len(keys))
	for i, k := range keys {
		vals[i] = labels[k]
	}
	return keys, vals
}
