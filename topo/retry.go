package topo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Johndevils/Mongodb-bot/errors"
)

const (
	// DefaultRetryBaseInterval is the first backoff delay.
	DefaultRetryBaseInterval = 200 * time.Millisecond
	// DefaultRetryMaxInterval caps the backoff delay.
	DefaultRetryMaxInterval = 2 * time.Second
	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 3
)

// retryableCodes are server error codes worth retrying: primary stepdowns,
// shutdowns, and replica state changes.
//
//nolint:gochecknoglobals
var retryableCodes = []int{
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
}

// IsTransientError reports whether err is worth retrying. Duplicate-key
// errors are deterministic and never transient.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsDuplicateKeyError(err) {
		return false
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range retryableCodes {
			if se.HasErrorCode(code) {
				return true
			}
		}
	}

	return false
}

// IsCursorNotFound reports whether err indicates the server invalidated the
// cursor (idle longer than the server-side cursor timeout).
func IsCursorNotFound(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 43 { // CursorNotFound
		return true
	}

	var se mongo.ServerError

	return errors.As(err, &se) && se.HasErrorCode(43)
}

// RunWithRetry executes fn, retrying transient errors up to maxRetries
// times with exponential backoff starting at baseInterval and capped at
// maxInterval. The whole operation is re-run on each attempt.
func RunWithRetry(
	ctx context.Context,
	fn func(context.Context) error,
	baseInterval, maxInterval time.Duration,
	maxRetries int,
) error {
	var err error

	interval := baseInterval

	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransientError(err) {
			return err
		}

		if attempt == maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck
		case <-time.After(interval):
		}

		interval = min(interval*2, maxInterval)
	}
}
