package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks submitted jobs by kind and terminal status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunevault_jobs_total",
			Help: "Total number of jobs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	// JobDuration tracks job duration in seconds by kind
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunevault_job_duration_seconds",
			Help:    "Job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"kind"},
	)

	// ActiveJobs tracks number of currently running jobs
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunevault_active_jobs",
			Help: "Number of currently running jobs",
		},
	)

	// FetchBytesTotal tracks total bytes fetched from remote sources
	FetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tunevault_fetch_bytes_total",
			Help: "Total bytes fetched",
		},
	)

	// IngestTotal tracks catalog ingestions by result
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunevault_ingest_total",
			Help: "Total number of catalog ingest attempts",
		},
		[]string{"result"}, // inserted, duplicate, failed
	)

	// IngestDuration tracks ingest transaction duration
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tunevault_ingest_duration_seconds",
			Help:    "Ingest transaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StoreErrorsTotal tracks store errors by type
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunevault_store_errors_total",
			Help: "Total number of store errors",
		},
		[]string{"type"},
	)
)

// RecordJobStart records the start of a job
func RecordJobStart() {
	ActiveJobs.Inc()
}

// RecordJobEnd records a job reaching a terminal state
func RecordJobEnd(kind, status string, duration time.Duration) {
	ActiveJobs.Dec()
	JobsTotal.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFetchBytes records bytes fetched from a remote source
func RecordFetchBytes(n int64) {
	if n > 0 {
		FetchBytesTotal.Add(float64(n))
	}
}

// RecordIngest records an ingest attempt outcome
func RecordIngest(result string, duration time.Duration) {
	IngestTotal.WithLabelValues(result).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordStoreError records a store error by type
func RecordStoreError(errType string) {
	StoreErrorsTotal.WithLabelValues(errType).Inc()
}
