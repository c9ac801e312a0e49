package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend call latency per operation and final outcome.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmpmail_api_request_duration_seconds",
			Help:    "Backend API call duration in seconds, retries included",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"operation", "outcome"},
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmpmail_api_retries_total",
			Help: "Total number of retried backend attempts",
		},
		[]string{"operation"},
	)

	// outcome: success, failed, skipped
	RefreshCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmpmail_refresh_total",
			Help: "Total number of inbox refreshes",
		},
		[]string{"mode", "outcome"},
	)

	SweptAddresses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmpmail_swept_addresses_total",
			Help: "Total number of stored addresses removed by the expiry sweep",
		},
	)
)

func RecordAPIRequest(operation, outcome string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func IncrementAPIRetry(operation string) {
	APIRetries.WithLabelValues(operation).Inc()
}

func IncrementRefresh(silent bool, outcome string) {
	mode := "manual"
	if silent {
		mode = "silent"
	}
	RefreshCount.WithLabelValues(mode, outcome).Inc()
}

func AddSwept(n int) {
	if n > 0 {
		SweptAddresses.Add(float64(n))
	}
}
