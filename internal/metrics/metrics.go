// Package metrics provides centralized Prometheus metrics registry for the value bet engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "racing_value"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	FetchAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "Total number of outbound provider calls, including retries",
	}, []string{"host"})
	FetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_failures_total",
		Help:      "Total number of failed fetches by error kind",
	}, []string{"host", "kind"})
	AuthRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_refreshes_total",
		Help:      "Total number of session tokens issued",
	}, []string{"credential", "mode"})
	AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of failed authentications",
	}, []string{"credential"})
	CatalogCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_cache_hits_total",
		Help:      "Total number of race catalog cache hits",
	})
	CatalogCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_cache_misses_total",
		Help:      "Total number of race catalog cache misses",
	})
	RacesEvaluatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "races_evaluated_total",
		Help:      "Total number of races processed by outcome",
	}, []string{"outcome"})
	ValueBetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "value_bets_total",
		Help:      "Total number of value bets found by bet type",
	}, []string{"bet_type"})
	InvalidOddsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invalid_odds_total",
		Help:      "Total number of runners excluded for invalid odds",
	})
)

// Gauge metrics
var (
	LastRunValueBets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_value_bets",
		Help:      "Number of value bets reported by the most recent run",
	})
	LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the most recent completed run",
	})
)

// Histogram metrics
var (
	FetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_latency_seconds",
		Help:      "Latency of a single outbound provider call",
		Buckets:   prometheus.DefBuckets,
	}, []string{"host"})
	RaceOverround = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "race_overround",
		Help:      "Bookmaker overround of evaluated races",
		Buckets:   []float64{0, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1},
	})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a full pipeline run",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)

// InitRegistry initializes the global Prometheus registry with all metrics.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(FetchAttemptsTotal)
		registry.MustRegister(FetchFailuresTotal)
		registry.MustRegister(AuthRefreshesTotal)
		registry.MustRegister(AuthFailuresTotal)
		registry.MustRegister(CatalogCacheHitsTotal)
		registry.MustRegister(CatalogCacheMissesTotal)
		registry.MustRegister(RacesEvaluatedTotal)
		registry.MustRegister(ValueBetsTotal)
		registry.MustRegister(InvalidOddsTotal)

		registry.MustRegister(LastRunValueBets)
		registry.MustRegister(LastRunTimestamp)

		registry.MustRegister(RaceOverround)
		registry.MustRegister(FetchLatency)
		registry.MustRegister(RunDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordFetchAttempt records one outbound call and its latency.
func RecordFetchAttempt(host string, durationSeconds float64) {
	FetchAttemptsTotal.WithLabelValues(host).Inc()
	FetchLatency.WithLabelValues(host).Observe(durationSeconds)
}

// RecordFetchFailure records a fetch that ended in error.
func RecordFetchFailure(host, kind string) {
	FetchFailuresTotal.WithLabelValues(host, kind).Inc()
}

// RecordAuthRefresh records a newly issued session token.
func RecordAuthRefresh(credential, mode string) {
	AuthRefreshesTotal.WithLabelValues(credential, mode).Inc()
}

// RecordAuthFailure records a failed authentication.
func RecordAuthFailure(credential string) {
	AuthFailuresTotal.WithLabelValues(credential).Inc()
}

// RecordCatalogCache records a catalog cache lookup.
func RecordCatalogCache(hit bool) {
	if hit {
		CatalogCacheHitsTotal.Inc()
		return
	}
	CatalogCacheMissesTotal.Inc()
}

// RecordRaceEvaluated records a processed race. Outcome is "evaluated" or "skipped".
func RecordRaceEvaluated(outcome string, overround float64) {
	RacesEvaluatedTotal.WithLabelValues(outcome).Inc()
	if outcome == "evaluated" {
		RaceOverround.Observe(overround)
	}
}

// RecordValueBet records a value bet of the given type.
func RecordValueBet(betType string) {
	ValueBetsTotal.WithLabelValues(betType).Inc()
}

// RecordInvalidOdds records runners excluded from normalization.
func RecordInvalidOdds(count int) {
	InvalidOddsTotal.Add(float64(count))
}

// RecordRun records a completed pipeline run.
func RecordRun(durationSeconds float64, valueBets int, finishedUnix float64) {
	RunDuration.Observe(durationSeconds)
	LastRunValueBets.Set(float64(valueBets))
	LastRunTimestamp.Set(finishedUnix)
}
