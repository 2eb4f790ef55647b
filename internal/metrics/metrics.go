// Package metrics holds the Prometheus collectors for the tracking pipeline and
// the sink server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Client side: upload queue
	InteractionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classtrace_interactions_recorded_total",
			Help: "Interactions appended to the upload queue",
		},
	)

	BatchesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classtrace_batches_sent_total",
			Help: "Interaction batches sent to the sink by result",
		},
		[]string{"result"}, // ok, retry, malformed
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classtrace_records_dropped_total",
			Help: "Interaction records removed from the queue without delivery",
		},
		[]string{"reason"}, // malformed, exhausted, shutdown
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classtrace_queue_pending",
			Help: "Interactions waiting for the next flush",
		},
	)

	// Sink side
	InteractionsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classtrace_sink_interactions_stored_total",
			Help: "Interactions persisted by the sink",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classtrace_http_request_duration_seconds",
			Help:    "Sink API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordBatch counts one send attempt outcome.
func RecordBatch(result string) {
	BatchesSent.WithLabelValues(result).Inc()
}

// RecordDropped counts n records removed for reason.
func RecordDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	RecordsDropped.WithLabelValues(reason).Add(float64(n))
}
