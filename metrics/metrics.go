package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricNamespace = "mongodb_transfer_bot"

// Counters.
var (
	//nolint:gochecknoglobals
	documentsReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_read_total",
		Help:      "Total number of documents read from source collections.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	documentsWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_written_total",
		Help:      "Total number of documents written to target collections.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	documentsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_skipped_total",
		Help:      "Total number of documents skipped as duplicates.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	documentsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_failed_total",
		Help:      "Total number of documents that failed to write.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	batchRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "batch_retries_total",
		Help:      "Total number of batch write retries after transient errors.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	transfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "transfers_total",
		Help:      "Total number of finished transfers by terminal status.",
		Namespace: metricNamespace,
	}, []string{"status"})
)

// Gauges and histograms.
var (
	//nolint:gochecknoglobals
	transfersInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "transfers_in_progress",
		Help:      "Number of transfers currently running.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	batchWriteDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:      "batch_write_duration_seconds",
		Help:      "Duration of batch bulk writes in seconds.",
		Namespace: metricNamespace,
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	//nolint:gochecknoglobals
	batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:      "batch_size",
		Help:      "Number of documents per dispatched batch.",
		Namespace: metricNamespace,
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)

// Init initializes and registers the metrics.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: metricNamespace,
	}))

	reg.MustRegister(
		documentsReadTotal,
		documentsWrittenTotal,
		documentsSkippedTotal,
		documentsFailedTotal,
		batchRetriesTotal,
		transfersTotal,

		transfersInProgress,
		batchWriteDurationSeconds,
		batchSize,
	)
}

// AddDocumentsRead increments the read documents counter.
func AddDocumentsRead(v int) {
	documentsReadTotal.Add(float64(v))
}

// AddDocumentsWritten increments the written documents counter.
func AddDocumentsWritten(v int) {
	documentsWrittenTotal.Add(float64(v))
}

// AddDocumentsSkipped increments the skipped documents counter.
func AddDocumentsSkipped(v int) {
	documentsSkippedTotal.Add(float64(v))
}

// AddDocumentsFailed increments the failed documents counter.
func AddDocumentsFailed(v int) {
	documentsFailedTotal.Add(float64(v))
}

// IncBatchRetries increments the batch retry counter.
func IncBatchRetries() {
	batchRetriesTotal.Inc()
}

// IncTransfers increments the finished transfers counter for a terminal status.
func IncTransfers(status string) {
	transfersTotal.WithLabelValues(status).Inc()
}

// IncTransfersInProgress increments the in-progress transfers gauge.
func IncTransfersInProgress() {
	transfersInProgress.Inc()
}

// DecTransfersInProgress decrements the in-progress transfers gauge.
func DecTransfersInProgress() {
	transfersInProgress.Dec()
}

// ObserveBatchWriteDuration records the duration of one batch bulk write.
func ObserveBatchWriteDuration(d time.Duration) {
	batchWriteDurationSeconds.Observe(d.Seconds())
}

// ObserveBatchSize records the number of documents in a dispatched batch.
func ObserveBatchSize(v int) {
	batchSize.Observe(float64(v))
}
