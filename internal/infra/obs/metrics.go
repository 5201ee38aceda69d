package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the gateway collectors. Each instance owns its registry
// so tests can build several without clashing.
type Metrics struct {
	registry *prometheus.Registry

	Connections       prometheus.Gauge
	InboundEvents     *prometheus.CounterVec
	OutboundEvents    *prometheus.CounterVec
	DroppedEvents     *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	HTTPRequests      *prometheus.HistogramVec
	RPCDuration       *prometheus.HistogramVec
	FanoutPublishErrs prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rentme", Subsystem: "realtime",
			Name: "connections",
			Help: "Open websocket connections.",
		}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentme", Subsystem: "realtime",
			Name: "inbound_events_total",
			Help: "Client events received, by event name and outcome.",
		}, []string{"event", "outcome"}),
		OutboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentme", Subsystem: "realtime",
			Name: "outbound_events_total",
			Help: "Server events queued to connections, by event name.",
		}, []string{"event"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentme", Subsystem: "realtime",
			Name: "dropped_events_total",
			Help: "Events dropped before delivery, by reason.",
		}, []string{"reason"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentme", Subsystem: "notifications",
			Name: "processed_total",
			Help: "Notifications stored, by type.",
		}, []string{"type"}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rentme", Subsystem: "http",
			Name:    "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rentme", Subsystem: "messaging",
			Name:    "rpc_duration_seconds",
			Help:    "Messaging service call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
		FanoutPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rentme", Subsystem: "realtime",
			Name: "fanout_publish_errors_total",
			Help: "Failed publishes to the cross-instance broker.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.InboundEvents,
		m.OutboundEvents,
		m.DroppedEvents,
		m.Notifications,
		m.HTTPRequests,
		m.RPCDuration,
		m.FanoutPublishErrs,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
