// Package metrics exposes Prometheus collectors for the browser shell.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the shell collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TabsOpen        prometheus.Gauge
	SurfaceEvents   *prometheus.CounterVec
	Injections      *prometheus.CounterVec
	BridgeRequests  *prometheus.CounterVec
	BridgeOutcomes  *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	ParseErrors     prometheus.Counter
	IPCConnections  prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TabsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserx_tabs_open",
			Help: "Number of open tabs",
		}),
		SurfaceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browserx_surface_events_total",
			Help: "Content surface events by type",
		}, []string{"type"}),
		Injections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browserx_injections_total",
			Help: "Script injections by script and result",
		}, []string{"script", "result"}),
		BridgeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browserx_bridge_requests_total",
			Help: "Page requests accepted by the bridge",
		}, []string{"kind"}),
		BridgeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browserx_bridge_outcomes_total",
			Help: "Bridge request outcomes by kind",
		}, []string{"kind", "outcome"}),
		BackendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "browserx_backend_duration_seconds",
			Help:    "Backend call latency by request kind",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserx_parse_errors_total",
			Help: "Malformed tagged messages and backend payloads",
		}),
		IPCConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserx_ipc_connections",
			Help: "Open shell IPC websocket connections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetTabsOpen records the registry size.
func (m *Metrics) SetTabsOpen(n int) {
	if m == nil {
		return
	}
	m.TabsOpen.Set(float64(n))
}

// SurfaceEvent counts one surface event.
func (m *Metrics) SurfaceEvent(kind string) {
	if m == nil {
		return
	}
	m.SurfaceEvents.WithLabelValues(kind).Inc()
}

// Injection counts one script injection attempt.
func (m *Metrics) Injection(script, result string) {
	if m == nil {
		return
	}
	m.Injections.WithLabelValues(script, result).Inc()
}

// Request counts one accepted bridge request.
func (m *Metrics) Request(kind string) {
	if m == nil {
		return
	}
	m.BridgeRequests.WithLabelValues(kind).Inc()
}

// Outcome counts one bridge request outcome.
func (m *Metrics) Outcome(kind, outcome string) {
	if m == nil {
		return
	}
	m.BridgeOutcomes.WithLabelValues(kind, outcome).Inc()
}

// ObserveBackend records backend latency.
func (m *Metrics) ObserveBackend(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ParseError counts one dropped malformed payload.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// IPCConnected adjusts the open IPC connection gauge.
func (m *Metrics) IPCConnected(delta int) {
	if m == nil {
		return
	}
	m.IPCConnections.Add(float64(delta))
}
