package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for one client. All
// record methods are nil-safe, so a client without metrics pays only a
// nil check.
type Metrics struct {
	framesDecoded   prometheus.Counter
	heartbeats      prometheus.Counter
	packetsRouted   *prometheus.CounterVec
	writeErrors     prometheus.Counter
	readErrors      prometheus.Counter
	handlerPanics   prometheus.Counter
	connectionState prometheus.Gauge
	queueDepth      prometheus.Gauge
}

// MetricsConfig configures client metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "tradewire").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures client metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// NewMetrics creates the client metric set and registers it.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "tradewire",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		framesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_decoded_total",
			Help:        "Total wire frames decoded from the feed",
			ConstLabels: config.ConstLabels,
		}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "heartbeats_total",
			Help:        "Total heartbeat packets echoed",
			ConstLabels: config.ConstLabels,
		}),
		packetsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "packets_routed_total",
			Help:        "Total packets routed, by destination kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "write_errors_total",
			Help:        "Total socket write failures",
			ConstLabels: config.ConstLabels,
		}),
		readErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "read_errors_total",
			Help:        "Total socket read failures",
			ConstLabels: config.ConstLabels,
		}),
		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "handler_panics_total",
			Help:        "Total panics contained at the dispatch boundary",
			ConstLabels: config.ConstLabels,
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connection_state",
			Help:        "Current connection state (0 Disconnected .. 4 Closing)",
			ConstLabels: config.ConstLabels,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "send_queue_depth",
			Help:        "Frames waiting in the send queue",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) recordFrames(n int) {
	if m != nil {
		m.framesDecoded.Add(float64(n))
	}
}

func (m *Metrics) recordHeartbeat() {
	if m != nil {
		m.heartbeats.Inc()
	}
}

func (m *Metrics) recordRouted(kind string) {
	if m != nil {
		m.packetsRouted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) recordWriteError() {
	if m != nil {
		m.writeErrors.Inc()
	}
}

func (m *Metrics) recordReadError() {
	if m != nil {
		m.readErrors.Inc()
	}
}

func (m *Metrics) recordHandlerPanic() {
	if m != nil {
		m.handlerPanics.Inc()
	}
}

func (m *Metrics) recordState(s State) {
	if m != nil {
		m.connectionState.Set(float64(s))
	}
}

func (m *Metrics) recordQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}
