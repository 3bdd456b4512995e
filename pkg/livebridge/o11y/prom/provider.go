// Package prom implements the o11y metrics interfaces on Prometheus.
package prom

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bakarr/livebridge/pkg/livebridge/o11y"
)

// Provider implements o11y.MetricsProvider using a Prometheus registerer.
// Each instrument name must be used with a consistent label-key set;
// Prometheus rejects a second registration of the same name with different
// labels.
type Provider struct {
	namespace  string
	registerer prometheus.Registerer
}

// NewProvider creates a provider registering into reg. A nil reg uses the
// default registerer.
func NewProvider(namespace string, reg prometheus.Registerer) *Provider {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Provider{namespace: namespace, registerer: reg}
}

func (p *Provider) Counter(name string) o11y.Counter {
	return &promCounter{instrument: p.instrument(name)}
}

func (p *Provider) Histogram(name string) o11y.Histogram {
	return &promHistogram{instrument: p.instrument(name)}
}

func (p *Provider) Gauge(name string) o11y.Gauge {
	return &promGauge{instrument: p.instrument(name)}
}

func (p *Provider) instrument(name string) *instrument {
	return &instrument{namespace: p.namespace, name: name, registerer: p.registerer}
}

// instrument caches one collector vector per label-key signature, created on
// first use since label keys only become known at call time.
type instrument struct {
	namespace  string
	name       string
	registerer prometheus.Registerer

	mu   sync.Mutex
	vecs map[string]prometheus.Collector
}

func (i *instrument) vec(keys []string, create func() prometheus.Collector) prometheus.Collector {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.vecs == nil {
		i.vecs = make(map[string]prometheus.Collector)
	}

	sig := strings.Join(keys, ",")
	if vec, ok := i.vecs[sig]; ok {
		return vec
	}

	vec := create()
	if err := i.registerer.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = already.ExistingCollector
		}
	}
	i.vecs[sig] = vec
	return vec
}

type promCounter struct {
	*instrument
}

func (c *promCounter) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	keys, values := splitLabels(labels)
	vec := c.vec(keys, func() prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      c.name,
		}, keys)
	})
	if counters, ok := vec.(*prometheus.CounterVec); ok {
		counters.WithLabelValues(values...).Add(float64(value))
	}
}

type promGauge struct {
	*instrument
}

func (g *promGauge) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	keys, values := splitLabels(labels)
	vec := g.vec(keys, func() prometheus.Collector {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: g.namespace,
			Name:      g.name,
		}, keys)
	})
	if gauges, ok := vec.(*prometheus.GaugeVec); ok {
		gauges.WithLabelValues(values...).Set(value)
	}
}

type promHistogram struct {
	*instrument
}

func (h *promHistogram) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	keys, values := splitLabels(labels)
	vec := h.vec(keys, func() prometheus.Collector {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: h.namespace,
			Name:      h.name,
		}, keys)
	})
	if histograms, ok := vec.(*prometheus.HistogramVec); ok {
		histograms.WithLabelValues(values...).Observe(value)
	}
}

// splitLabels returns label keys and values in key-sorted order so the same
// label set always produces the same vector signature.
func splitLabels(labels []o11y.Label) ([]string, []string) {
	sorted := make([]o11y.Label, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Key < sorted[b].Key })

	keys := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, label := range sorted {
		keys[i] = label.Key
		values[i] = label.Value
	}
	return keys, values
}
