package transfer

import (
	"fmt"

	"github.com/Johndevils/Mongodb-bot/errors"
)

// ErrTimeout is reported when a transfer exceeds its end-to-end deadline.
var ErrTimeout = errors.New("transfer timed out")

// ErrAlreadyRunning is returned by Run when the transfer has been started
// before. A Transfer is single-use.
var ErrAlreadyRunning = errors.New("transfer already started")

// ErrSameNamespace is returned when the source and target of a request
// resolve to the same collection on the same deployment.
var ErrSameNamespace = errors.New("source and target are the same namespace")

// StreamKind classifies source-side read failures.
type StreamKind string

const (
	// StreamCursorExpired means the server-side cursor was invalidated.
	// The stream can be reopened from its last position.
	StreamCursorExpired StreamKind = "cursorExpired"

	// StreamReadFailure covers every other failure while fetching a page.
	StreamReadFailure StreamKind = "readFailure"
)

// StreamError is a failure while reading documents from the source.
type StreamError struct {
	Kind  StreamKind
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream [%s]: %v", e.Kind, e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// WriteKind classifies target-side write failures.
type WriteKind string

const (
	// WriteDuplicateKey means a document's _id already exists on the target.
	WriteDuplicateKey WriteKind = "duplicateKey"

	// WriteTransient covers retryable failures: network errors, timeouts
	// and server-side retryable error codes.
	WriteTransient WriteKind = "transient"

	// WriteRejected covers non-retryable server rejections such as schema
	// validation failures.
	WriteRejected WriteKind = "rejected"
)

// WriteError is a failure while writing a batch to the target.
type WriteError struct {
	Kind  WriteKind
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write [%s]: %v", e.Kind, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}
