package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "reservation_admissions_total",
			Help:      "Count of reservation admission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "availability_queries_total",
			Help:      "Count of availability queries by result.",
		},
		[]string{"result"},
	)

	catalogCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "catalog_cache_total",
			Help:      "Catalog cache lookups by result.",
		},
		[]string{"result"},
	)

	catalogReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "catalog_reloads_total",
			Help:      "Catalog file reloads by status.",
		},
		[]string{"status"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "events_total",
			Help:      "Domain events seen on the bus by type.",
		},
		[]string{"type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kartoteka",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(admissions, availabilityQueries, catalogCache, catalogReloads, eventsPublished, httpRequests, httpDuration)
	})
}

func IncAdmission(outcome string) {
	admissions.WithLabelValues(outcome).Inc()
}

func IncAvailabilityQuery(result string) {
	availabilityQueries.WithLabelValues(result).Inc()
}

func IncCatalogCache(result string) {
	catalogCache.WithLabelValues(result).Inc()
}

func IncCatalogReload(status string) {
	catalogReloads.WithLabelValues(status).Inc()
}

func IncEvent(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
