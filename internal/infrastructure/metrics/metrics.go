// Package metrics registra las métricas Prometheus de ambos servicios.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/inventario-saga/internal/application/retry"
)

// Metrics colectores del servicio.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec
	httpActive   prometheus.Gauge

	shipOutcomes  *prometheus.CounterVec
	applyOutcomes *prometheus.CounterVec
	retryHandled  *prometheus.CounterVec
}

// New crea un registro propio con los colectores de proceso y Go más los del servicio.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status_code"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_active",
			Help: "Number of active HTTP requests",
		}),
		shipOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_ship_total",
			Help: "Ship attempts by outcome (shipped, will_retry, rejected, error)",
		}, []string{"outcome"}),
		applyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_apply_total",
			Help: "Inventory mutations by outcome (applied, cached, business, crash, error)",
		}, []string{"outcome"}),
		retryHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_retry_deliveries_total",
			Help: "Retry channel deliveries by disposition",
		}, []string{"disposition"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration, m.httpTotal, m.httpActive,
		m.shipOutcomes, m.applyOutcomes, m.retryHandled,
	)
	return m
}

// Registry devuelve el registro (pruebas).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler expone /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RequestStarted incrementa las peticiones activas.
func (m *Metrics) RequestStarted() { m.httpActive.Inc() }

// RequestFinished registra duración y total y decrementa las activas.
func (m *Metrics) RequestFinished(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.httpTotal.WithLabelValues(method, route, code).Inc()
	m.httpActive.Dec()
}

// ObserveShip cuenta un intento de envío.
func (m *Metrics) ObserveShip(outcome string) { m.shipOutcomes.WithLabelValues(outcome).Inc() }

// ObserveApply cuenta una mutación de inventario.
func (m *Metrics) ObserveApply(outcome string) { m.applyOutcomes.WithLabelValues(outcome).Inc() }

// ObserveRetry cuenta una entrega del canal de reintentos.
func (m *Metrics) ObserveRetry(d retry.Disposition) { m.retryHandled.WithLabelValues(d.String()).Inc() }
