package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sawpanic/fisr/internal/application"
	"github.com/sawpanic/fisr/internal/domain/risk"
)

// MetricsRegistry holds the rebalancer's Prometheus metrics on a private registry
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Cycle metrics
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Order metrics
	Orders     *prometheus.CounterVec
	Rejections *prometheus.CounterVec

	// Book metrics
	CurrentDuration prometheus.Gauge
	TargetDuration  prometheus.Gauge
	Drift           prometheus.Gauge

	// Market data
	FetchErrors *prometheus.CounterVec

	// Dashboard
	Requests *prometheus.CounterVec
}

// NewMetricsRegistry creates and registers all metrics
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisr_cycles_total",
				Help: "Rebalance cycles by outcome",
			},
			[]string{"outcome"},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fisr_cycle_duration_seconds",
				Help:    "Wall time of a rebalance cycle in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisr_orders_total",
				Help: "Sized orders by final status",
			},
			[]string{"status"},
		),

		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisr_risk_rejections_total",
				Help: "Orders denied by the risk gatekeeper, by rule",
			},
			[]string{"rule"},
		),

		CurrentDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fisr_portfolio_duration_years",
			Help: "Value-weighted duration of the book at the last cycle",
		}),
		TargetDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fisr_target_duration_years",
			Help: "Configured target duration at the last cycle",
		}),
		Drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fisr_duration_drift_years",
			Help: "Absolute distance between book and target duration",
		}),

		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisr_marketdata_errors_total",
				Help: "Failed market data fetches by provider",
			},
			[]string{"provider"},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fisr_http_requests_total",
				Help: "Dashboard requests by method and status code",
			},
			[]string{"method", "code"},
		),
	}

	m.registry.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.Orders,
		m.Rejections,
		m.CurrentDuration,
		m.TargetDuration,
		m.Drift,
		m.FetchErrors,
		m.Requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for gathering
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle implements application.Observer
func (m *MetricsRegistry) ObserveCycle(outcome application.Outcome, elapsed time.Duration) {
	m.Cycles.WithLabelValues(string(outcome)).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
}

// ObserveDuration implements application.Observer
func (m *MetricsRegistry) ObserveDuration(current, target, drift float64) {
	m.CurrentDuration.Set(current)
	m.TargetDuration.Set(target)
	m.Drift.Set(drift)
}

// ObserveOrder implements application.Observer
func (m *MetricsRegistry) ObserveOrder(status application.OrderStatus, reason risk.RejectReason) {
	m.Orders.WithLabelValues(string(status)).Inc()
	if reason != risk.ReasonNone {
		m.Rejections.WithLabelValues(string(reason)).Inc()
	}
}

// ObserveFetchError implements application.Observer
func (m *MetricsRegistry) ObserveFetchError(provider string) {
	m.FetchErrors.WithLabelValues(provider).Inc()
}

// MetricsHandler serves the private registry in the Prometheus text format
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ application.Observer = (*MetricsRegistry)(nil)
