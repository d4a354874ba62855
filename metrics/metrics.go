package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neton"

type collector struct {
	labels    []string
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

var (
	_mu         sync.Mutex
	_registry   = prometheus.NewRegistry()
	_collectors = make(map[string]*collector)
)

// DefaultBuckets are used by ObserveHistogramWithGroup.
var DefaultBuckets = prometheus.ExponentialBuckets(16, 4, 8)

// Registry returns the registry every metric of this package is registered in.
func Registry() *prometheus.Registry {
	_mu.Lock()
	defer _mu.Unlock()
	return _registry
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// Reset drops every metric and starts a fresh registry.
func Reset() {
	_mu.Lock()
	defer _mu.Unlock()
	_registry = prometheus.NewRegistry()
	_collectors = make(map[string]*collector)
}

func metricName(group, name string) string {
	if group == "" {
		return name
	}
	return group + "_" + name
}

func sortedLabels(dims Dimension) []string {
	labels := dims.keys()
	sort.Strings(labels)
	return labels
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func labelValues(labels []string, dims Dimension) []string {
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = dims[l]
	}
	return values
}

// lookup returns the collector for group/name, creating it with build when
// missing. A call whose label set differs from the first use returns nil, as
// does a name already taken by a metric of another kind.
func lookup(kind, group, name string, dims Dimension, build func(opts prometheus.Opts, labels []string) *collector) *collector {
	key := kind + ":" + metricName(group, name)
	labels := sortedLabels(dims)

	_mu.Lock()
	defer _mu.Unlock()

	if c, ok := _collectors[key]; ok {
		if !sameLabels(c.labels, labels) {
			return nil
		}
		return c
	}

	opts := prometheus.Opts{
		Namespace: namespace,
		Subsystem: sanitize(group),
		Name:      sanitize(name),
		Help:      strings.ReplaceAll(metricName(group, name), "_", " "),
	}
	c := build(opts, labels)
	if c != nil {
		_collectors[key] = c
	}
	return c
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func counterCollector(opts prometheus.Opts, labels []string) *collector {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts(opts), labels)
	if err := _registry.Register(vec); err != nil {
		return nil
	}
	return &collector{labels: labels, counter: vec}
}

func gaugeCollector(opts prometheus.Opts, labels []string) *collector {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts(opts), labels)
	if err := _registry.Register(vec); err != nil {
		return nil
	}
	return &collector{labels: labels, gauge: vec}
}

func histogramCollector(opts prometheus.Opts, labels []string) *collector {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
		Buckets:   DefaultBuckets,
	}, labels)
	if err := _registry.Register(vec); err != nil {
		return nil
	}
	return &collector{labels: labels, histogram: vec}
}

// IncrCounterWithGroup adds v to the counter group/name.
func IncrCounterWithGroup(group, name string, v Value) {
	IncrCounterWithDimGroup(group, name, v, nil)
}

// IncrCounterWithDimGroup adds v to the counter group/name with dims as labels.
// Negative values are ignored.
func IncrCounterWithDimGroup(group, name string, v Value, dims Dimension) {
	if v < 0 {
		return
	}
	c := lookup("counter", group, name, dims, counterCollector)
	if c == nil {
		return
	}
	c.counter.WithLabelValues(labelValues(c.labels, dims)...).Add(float64(v))
}

// UpdateGaugeWithGroup sets the gauge group/name to v.
func UpdateGaugeWithGroup(group, name string, v Value) {
	UpdateGaugeWithDimGroup(group, name, v, nil)
}

// UpdateGaugeWithDimGroup sets the gauge group/name with dims as labels to v.
func UpdateGaugeWithDimGroup(group, name string, v Value, dims Dimension) {
	c := lookup("gauge", group, name, dims, gaugeCollector)
	if c == nil {
		return
	}
	c.gauge.WithLabelValues(labelValues(c.labels, dims)...).Set(float64(v))
}

// ObserveHistogramWithGroup records v in the histogram group/name.
func ObserveHistogramWithGroup(group, name string, v Value) {
	c := lookup("histogram", group, name, nil, histogramCollector)
	if c == nil {
		return
	}
	c.histogram.WithLabelValues().Observe(float64(v))
}
