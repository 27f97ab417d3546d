// Package metrics instruments the request pipeline with Prometheus.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photonyx"

// Metrics holds the pipeline collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Counter
	parses      *prometheus.CounterVec
	requests    *prometheus.CounterVec
	rateLimited prometheus.Counter
	wsClients   prometheus.Gauge
}

// New registers the pipeline collectors plus the Go runtime collectors on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Accepted TCP connections.",
		}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_outcomes_total",
			Help:      "Request parse outcomes.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Responses written, by status code.",
		}, []string{"code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-peer rate limiter.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.parses,
		m.requests,
		m.rateLimited,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveQueue exposes the worker pool queue depth and busy workers.
func (m *Metrics) ObserveQueue(queued, busy func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Connections waiting for a worker.",
		}, queued),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently serving a connection.",
		}, busy),
	)
}

func (m *Metrics) ConnectionAccepted() {
	if m != nil {
		m.connections.Inc()
	}
}

// Parsed counts one parse outcome ("complete", "error", "invalid").
func (m *Metrics) Parsed(outcome string) {
	if m != nil {
		m.parses.WithLabelValues(outcome).Inc()
	}
}

// Responded counts a written response. Dropped connections use code 0.
func (m *Metrics) Responded(code int) {
	if m != nil {
		m.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// WebSocketClients sets the connected client gauge.
func (m *Metrics) WebSocketClients(n int) {
	if m != nil {
		m.wsClients.Set(float64(n))
	}
}

// Registry is the Prometheus registry, nil for nil Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
