package config

import "time"

const (
	// DefaultServerPort is the default port for the HTTP server.
	DefaultServerPort = 8080

	// DefaultBatchSize is the default number of documents per bulk write.
	DefaultBatchSize = 500
	// MaxBatchSize is the upper bound accepted for a transfer batch size.
	MaxBatchSize = 10_000

	// DefaultDuplicatePolicy is applied when a request does not set one.
	DefaultDuplicatePolicy = "skip"

	// DefaultConnectTimeout bounds the liveness probe of a new connection.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultTransferTimeout bounds a whole transfer end to end.
	DefaultTransferTimeout = 30 * time.Minute
	// DisconnectTimeout bounds connection teardown.
	DisconnectTimeout = 10 * time.Second
)

const (
	// WriteRetryBaseInterval is the first backoff delay for a transient
	// batch write failure.
	WriteRetryBaseInterval = 200 * time.Millisecond
	// WriteRetryMaxInterval caps the exponential backoff delay.
	WriteRetryMaxInterval = 2 * time.Second
	// WriteMaxRetries is the number of retries after the initial attempt.
	WriteMaxRetries = 3

	// BatchWriteTimeout bounds a single batch write including its retries.
	// An in-flight write keeps this budget even when the transfer deadline
	// fires, so it can finish or fail on its own.
	BatchWriteTimeout = time.Minute
)

const (
	// ProgressEveryBatches emits a progress event after this many batches.
	ProgressEveryBatches = 10
	// ProgressInterval emits a progress event after this much time even if
	// fewer than [ProgressEveryBatches] batches completed.
	ProgressInterval = 10 * time.Second
)
