// Package metrics exports backorder operation metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-backorder/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Labels is the fixed label set every exported series carries. Tags outside
// this set are dropped and missing ones export as empty strings, so a metric
// name always maps to one descriptor.
var Labels = []string{"operation", "status", "breaker", "outcome", "kind", "sink", "to", "job_id"}

// DurationBuckets are in milliseconds, matching the duration_ms histograms.
var DurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type PrometheusRecorder struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusRecorder registers collectors on registry, or on a private
// registry when nil.
func NewPrometheusRecorder(registry *prometheus.Registry) *PrometheusRecorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &PrometheusRecorder{
		registerer: registry,
		gatherer:   registry,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

func (r *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter := r.counter(MetricName(name))
	if counter == nil {
		return
	}
	counter.With(labelValues(tags)).Add(float64(value))
}

func (r *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram := r.histogram(MetricName(name))
	if histogram == nil {
		return
	}
	histogram.With(labelValues(tags)).Observe(value)
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

func (r *PrometheusRecorder) counter(name string) *prometheus.CounterVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Backorder counter " + name,
	}, Labels)
	if err := r.registerer.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil
		}
		counter = existing
	}
	r.counters[name] = counter
	return counter
}

func (r *PrometheusRecorder) histogram(name string) *prometheus.HistogramVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Backorder histogram " + name,
		Buckets: DurationBuckets,
	}, Labels)
	if err := r.registerer.Register(histogram); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil
		}
		histogram = existing
	}
	r.histograms[name] = histogram
	return histogram
}

// MetricName maps dotted observer names onto the Prometheus name charset:
// "backorder.poller.tick.total" becomes "backorder_poller_tick_total".
func MetricName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for i, ch := range name {
		valid := ch >= 'a' && ch <= 'z' || ch == '_' || ch == ':' || (i > 0 && ch >= '0' && ch <= '9')
		if !valid {
			if b.Len() == 0 || lastUnderscore {
				continue
			}
			b.WriteByte('_')
			lastUnderscore = true
			continue
		}
		b.WriteRune(ch)
		lastUnderscore = ch == '_'
	}
	return strings.TrimRight(b.String(), "_")
}

func labelValues(tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(Labels))
	for _, key := range Labels {
		labels[key] = strings.TrimSpace(tags[key])
	}
	return labels
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
