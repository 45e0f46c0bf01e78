package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Coordinates drawn by the sampler.
	CoordinatesSampledTotal prometheus.Counter

	// Unique cities after reverse geocoding. Watch for: low values relative to sample size.
	CitiesResolved prometheus.Gauge

	// OpenWeatherMap API call rate by status label.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 approaching the request timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Cities appended to the raw table.
	CitiesFetchedTotal prometheus.Counter

	// Cities skipped by the fetch loop, by error category.
	CitiesSkippedTotal *prometheus.CounterVec

	// Response cache hits. A hit avoids one API call.
	CacheHitsTotal prometheus.Counter

	// Cache get/set failures by operation. Cache errors never skip a city.
	CacheErrorsTotal *prometheus.CounterVec

	// Raw rows removed by the cleaner, by reason (humidity_over_100, humidity_invalid).
	RecordsDroppedTotal *prometheus.CounterVec

	// Rows written to the CSV export.
	RecordsExportedTotal prometheus.Counter

	// Status server request rate by method, route and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// Status server latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// Status requests refused by the rate limiter.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	CoordinatesSampledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinatesSampledTotal",
			Help: "Total number of random coordinates drawn",
		},
	)
	CitiesResolved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "citiesResolved",
			Help: "Number of unique cities resolved from sampled coordinates",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CitiesFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citiesFetchedTotal",
			Help: "Total number of cities with a successful weather observation",
		},
	)
	CitiesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citiesSkippedTotal",
			Help: "Total number of cities skipped by the fetch loop",
		},
		[]string{"reason"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of response cache hits",
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of response cache errors",
		},
		[]string{"operation"},
	)
	RecordsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsDroppedTotal",
			Help: "Total number of raw records removed by the cleaner",
		},
		[]string{"reason"},
	)
	RecordsExportedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsExportedTotal",
			Help: "Total number of cleaned records written to CSV",
		},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of status server requests",
		},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Status server request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of status requests denied by the rate limiter",
		},
	)

	registry.MustRegister(
		CoordinatesSampledTotal, CitiesResolved,
		WeatherAPICallsTotal, WeatherAPIDuration,
		CitiesFetchedTotal, CitiesSkippedTotal,
		CacheHitsTotal, CacheErrorsTotal,
		RecordsDroppedTotal, RecordsExportedTotal,
		HTTPRequestsTotal, HTTPRequestDuration, RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
