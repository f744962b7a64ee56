// Package metrics provides Prometheus metrics for cloudbrowse.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Retrieval outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

var (
	// Retriever metrics
	retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbrowse_retrievals_total",
			Help: "Total number of retrievals by scheme and outcome",
		},
		[]string{"scheme", "outcome"},
	)

	retrievedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbrowse_retrieved_bytes_total",
			Help: "Total bytes delivered to retrieval callers",
		},
		[]string{"scheme"},
	)

	retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudbrowse_retrieval_duration_seconds",
			Help:    "Time from open to close of a retrieval stream",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	// Provider API metrics
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbrowse_provider_requests_total",
			Help: "Total number of backend API requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbrowse_token_refreshes_total",
			Help: "Total number of silent token refresh attempts",
		},
		[]string{"provider", "status"},
	)

	// Browser metrics
	listingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbrowse_listing_cache_total",
			Help: "Listing cache lookups by result",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRetrieval records a finished retrieval.
func RecordRetrieval(scheme, outcome string, bytes int64, duration time.Duration) {
	retrievalsTotal.WithLabelValues(scheme, outcome).Inc()
	retrievalDuration.WithLabelValues(scheme).Observe(duration.Seconds())

	if bytes > 0 {
		retrievedBytesTotal.WithLabelValues(scheme).Add(float64(bytes))
	}
}

// RecordProviderRequest records one backend API round trip. A status of 0
// means the request failed before a response arrived.
func RecordProviderRequest(provider string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}

	providerRequestsTotal.WithLabelValues(provider, label).Inc()
}

// RecordTokenRefresh records a silent refresh attempt.
func RecordTokenRefresh(provider string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	tokenRefreshesTotal.WithLabelValues(provider, status).Inc()
}

// RecordListingCache records a listing cache hit or miss.
func RecordListingCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	listingCacheTotal.WithLabelValues(result).Inc()
}
