// Package metrics defines the Prometheus collectors used across eurorag and
// exposes an HTTP handler for scraping. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	SearchTotal       *prometheus.CounterVec
	SearchDuration    *prometheus.HistogramVec
	RetrieveDuration  prometheus.Histogram
	IndexUnits        *prometheus.GaugeVec
	IndexBuildsTotal  *prometheus.CounterVec
	CacheRequestTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eurorag_search_total",
				Help: "Total corpus searches by corpus and status.",
			},
			[]string{"corpus", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eurorag_search_duration_seconds",
				Help:    "Per-corpus search latency in seconds, embedding included.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"corpus"},
		),
		RetrieveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eurorag_retrieve_duration_seconds",
				Help:    "Multi-corpus retrieval latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		IndexUnits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eurorag_index_units",
				Help: "Number of retrievable units per loaded or built corpus.",
			},
			[]string{"corpus"},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eurorag_index_builds_total",
				Help: "Total index builds by corpus and status.",
			},
			[]string{"corpus", "status"},
		),
		CacheRequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eurorag_cache_requests_total",
				Help: "Retrieval cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.SearchTotal,
		m.SearchDuration,
		m.RetrieveDuration,
		m.IndexUnits,
		m.IndexBuildsTotal,
		m.CacheRequestTotal,
	)
	return m
}

// ObserveSearch records one corpus search.
func (m *Metrics) ObserveSearch(corpus string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchTotal.WithLabelValues(corpus, status(err)).Inc()
	m.SearchDuration.WithLabelValues(corpus).Observe(d.Seconds())
}

// ObserveRetrieve records one multi-corpus retrieval.
func (m *Metrics) ObserveRetrieve(d time.Duration) {
	if m == nil {
		return
	}
	m.RetrieveDuration.Observe(d.Seconds())
}

// SetIndexUnits records the size of a corpus index.
func (m *Metrics) SetIndexUnits(corpus string, n int) {
	if m == nil {
		return
	}
	m.IndexUnits.WithLabelValues(corpus).Set(float64(n))
}

// ObserveBuild records one index build.
func (m *Metrics) ObserveBuild(corpus string, err error) {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.WithLabelValues(corpus, status(err)).Inc()
}

// CacheResult records a cache lookup outcome: "hit", "miss" or "error".
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequestTotal.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
