package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API server. All methods are
// safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	wsConnections prometheus.Gauge
	broadcasts    *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	dropped       prometheus.Counter
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "innkeeper_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "innkeeper_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	conns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "innkeeper_realtime_connections",
		Help: "Currently open realtime WebSocket connections.",
	})
	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "innkeeper_realtime_broadcasts_total",
		Help: "Broadcast emissions by category.",
	}, []string{"category"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "innkeeper_realtime_deliveries_total",
		Help: "Messages queued to connections by category.",
	}, []string{"category"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "innkeeper_realtime_dropped_connections_total",
		Help: "Connections dropped because their send buffer was full.",
	})
	registry.MustRegister(requests, duration, conns, broadcasts, deliveries, dropped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		wsConnections:   conns,
		broadcasts:      broadcasts,
		deliveries:      deliveries,
		dropped:         dropped,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ConnectionOpened increments the open connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.wsConnections.Inc()
	}
}

// ConnectionClosed decrements the open connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.wsConnections.Dec()
	}
}

// Broadcast records one emission and the number of connections it reached.
func (m *Metrics) Broadcast(category string, delivered int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(category).Inc()
	m.deliveries.WithLabelValues(category).Add(float64(delivered))
}

// ConnectionDropped counts a connection evicted for back-pressure.
func (m *Metrics) ConnectionDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
