package stream

import (
	"errors"
	"fmt"
)

// Sentinel errors for the stream package.
var (
	// ErrDeviceUnavailable indicates the capture device could not be opened
	// (already in use, not present, permission denied).
	ErrDeviceUnavailable = errors.New("stream: device unavailable")

	// ErrDuplicateConsumer indicates the consumer id is already registered
	// on the stream.
	ErrDuplicateConsumer = errors.New("stream: duplicate consumer")

	// ErrUnknownConsumer indicates the consumer id is not registered.
	ErrUnknownConsumer = errors.New("stream: unknown consumer")

	// ErrStreamUnavailable indicates the stream is shutting down or failed
	// and cannot accept registrations.
	ErrStreamUnavailable = errors.New("stream: stream unavailable")

	// ErrEndOfStream is returned by Pull when the stream has terminated.
	// It is a clean termination signal, not a failure.
	ErrEndOfStream = errors.New("stream: end of stream")

	// ErrStreamNotFound indicates no active stream exists for the camera id.
	ErrStreamNotFound = errors.New("stream: stream not found")
)

// DeviceError wraps a capture-side failure with its source and operation.
type DeviceError struct {
	// Op is the failing operation ("open", "read").
	Op string

	// Source identifies the camera the failure belongs to.
	Source string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates whether the capture loop may retry.
	Retryable bool
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream: device %s failed for %q: %v", e.Op, e.Source, e.Cause)
	}
	return fmt.Sprintf("stream: device %s failed for %q", e.Op, e.Source)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the capture loop may retry after this error.
func IsRetryable(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}
	return false
}
