// Package metrics exposes Prometheus counters for the cost manager. All
// methods are safe on a nil *Metrics so callers can run without them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector, registered in a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	ratesCache     *prometheus.CounterVec
	ratesFetchErrs *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
	costsRecorded  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ratesCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costmanager_rates_cache_total",
				Help: "Rates cache lookups by result.",
			},
			[]string{"result"},
		),
		ratesFetchErrs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costmanager_rates_fetch_errors_total",
				Help: "Failed rates fetches by reason.",
			},
			[]string{"reason"},
		),
		reportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "costmanager_report_duration_seconds",
				Help:    "Report generation time by kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		costsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costmanager_costs_recorded_total",
				Help: "Cost entries recorded by currency.",
			},
			[]string{"currency"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costmanager_http_requests_total",
				Help: "HTTP requests by route and status class.",
			},
			[]string{"route", "status"},
		),
	}
}

func (m *Metrics) IncrRatesCacheHit() {
	if m == nil {
		return
	}
	m.ratesCache.WithLabelValues("hit").Inc()
}

func (m *Metrics) IncrRatesCacheMiss() {
	if m == nil {
		return
	}
	m.ratesCache.WithLabelValues("miss").Inc()
}

// IncrRatesFetchError counts a failed fetch. reason is a short label such
// as "http", "decode" or "circuit_open".
func (m *Metrics) IncrRatesFetchError(reason string) {
	if m == nil {
		return
	}
	m.ratesFetchErrs.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveReport(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.reportDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) IncrCostRecorded(currency string) {
	if m == nil {
		return
	}
	m.costsRecorded.WithLabelValues(currency).Inc()
}

func (m *Metrics) IncrHTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
