package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesFetchedTotal     *prometheus.CounterVec
	RecordsStoredTotal    *prometheus.CounterVec
	ExtractionErrorsTotal *prometheus.CounterVec
	TokenRefreshesTotal   *prometheus.CounterVec
	DimensionFailures     *prometheus.CounterVec
	FetchDuration         *prometheus.HistogramVec
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(initAll)
}

func initAll() {
	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pages_fetched_total",
			Help: "Total number of source pages fetched.",
		},
		[]string{"source", "status"}, // status: success, retry, failure
	)

	RecordsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_stored_total",
			Help: "Total number of records handed to storage.",
		},
		[]string{"source"},
	)

	ExtractionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_errors_total",
			Help: "Total number of records rejected during extraction.",
		},
		[]string{"source"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of credential refreshes.",
		},
		[]string{"source", "status"}, // status: success, failure
	)

	DimensionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dimension_failures_total",
			Help: "Dimensions abandoned after exhausting page retries.",
		},
		[]string{"source"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Duration of single page fetches.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served by the status API.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests served by the status API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
}
