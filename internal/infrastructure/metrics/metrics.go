// Package metrics exposes Prometheus collectors for the refresh pipeline
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "screener"

type Metrics struct {
	refreshRuns     *prometheus.CounterVec
	refreshSymbols  *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	lastRefresh     *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New constructs and registers the collectors with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		refreshRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "runs_total",
				Help:      "Completed refresh runs by market and batch status.",
			},
			[]string{"market", "status"},
		),
		refreshSymbols: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "symbols_total",
				Help:      "Per-symbol refresh results by market and result kind.",
			},
			[]string{"market", "result"},
		),
		refreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "duration_seconds",
				Help:      "Wall time of a refresh run.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"market"},
		),
		lastRefresh: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "last_finished_timestamp_seconds",
				Help:      "Unix time the last refresh run of a market finished.",
			},
			[]string{"market"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	reg.MustRegister(
		m.refreshRuns,
		m.refreshSymbols,
		m.refreshDuration,
		m.lastRefresh,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSymbol(market domain.Market, result string) {
	if m == nil {
		return
	}
	m.refreshSymbols.WithLabelValues(string(market), result).Inc()
}

func (m *Metrics) ObserveBatch(outcome *domain.BatchOutcome) {
	if m == nil || outcome == nil {
		return
	}
	market := string(outcome.Market)
	m.refreshRuns.WithLabelValues(market, string(outcome.Status)).Inc()
	if d := outcome.FinishedAt.Sub(outcome.StartedAt); d >= 0 {
		m.refreshDuration.WithLabelValues(market).Observe(d.Seconds())
	}
	m.lastRefresh.WithLabelValues(market).Set(float64(outcome.FinishedAt.Unix()))
}

func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
