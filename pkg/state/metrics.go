package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the evaluation metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "sunmao").
	Namespace string

	// Subsystem is the metrics subsystem (default: "state").
	Subsystem string

	// Buckets are the histogram buckets for evaluation duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithMetricsNamespace sets the metrics namespace.
func WithMetricsNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithMetricsRegistry sets the Prometheus registry.
func WithMetricsRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the Prometheus collectors for a Manager.
type Metrics struct {
	evaluations   *prometheus.CounterVec
	duration      prometheus.Histogram
	activeWatches prometheus.Gauge
	watchUpdates  prometheus.Counter
}

// NewMetrics registers the evaluation metrics:
//
//   - sunmao_state_evaluations_total: evaluations by result (ok, error, fallback)
//   - sunmao_state_evaluation_duration_seconds: MaskedEval duration
//   - sunmao_state_active_watches: leaf watchers currently installed
//   - sunmao_state_watch_updates_total: leaf changes delivered to callbacks
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "sunmao",
		Subsystem: "state",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "evaluations_total",
			Help:      "Total number of property evaluations by result",
		}, []string{"result"}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "evaluation_duration_seconds",
			Help:      "Property evaluation duration in seconds",
			Buckets:   config.Buckets,
		}),

		activeWatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "active_watches",
			Help:      "Number of installed leaf watchers",
		}),

		watchUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "watch_updates_total",
			Help:      "Total number of leaf updates delivered to watch callbacks",
		}),
	}
}

// The record helpers accept a nil receiver so call sites need no checks.

func (m *Metrics) recordEval(result string, seconds float64) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) watchAdded(n int) {
	if m == nil {
		return
	}
	m.activeWatches.Add(float64(n))
}

func (m *Metrics) watchUpdated() {
	if m == nil {
		return
	}
	m.watchUpdates.Inc()
}
